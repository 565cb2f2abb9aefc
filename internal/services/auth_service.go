package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"katalog/internal/authz"
	"katalog/internal/models"
	"katalog/internal/repositories"

	"github.com/dgrijalva/jwt-go"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already registered")
)

// AuthService handles registration, login and token checks.
type AuthService struct {
	userRepo   repositories.UserRepository
	jwtSecret  []byte
	tokenDurat time.Duration
	logger     *zap.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(userRepo repositories.UserRepository, jwtSecret string, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		userRepo:   userRepo,
		jwtSecret:  []byte(jwtSecret),
		tokenDurat: 24 * time.Hour,
		logger:     logger,
	}
}

// RegisterUser hashes the password and stores a new user.
func (s *AuthService) RegisterUser(ctx context.Context, user *models.User) error {
	if err := s.ensureFree(ctx, user.Username, user.Email); err != nil {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.Password = string(hashedPassword)

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateUser) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to register user: %w", err)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return nil
}

func (s *AuthService) ensureFree(ctx context.Context, username, email string) error {
	if _, err := s.userRepo.GetByUsername(ctx, username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return err
	}
	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return err
	}
	return nil
}

// EnsureAdmin creates the bootstrap administrator unless the username exists.
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	if username == "" || password == "" {
		return nil
	}
	if _, err := s.userRepo.GetByUsername(ctx, username); err == nil {
		return nil
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return err
	}

	admin := &models.User{Username: username, Email: email, Password: password, IsAdmin: true}
	if err := s.RegisterUser(ctx, admin); err != nil {
		return fmt.Errorf("failed to seed admin %s: %w", username, err)
	}
	return nil
}

// LoginUser checks credentials and returns a signed token.
func (s *AuthService) LoginUser(ctx context.Context, username, password string) (string, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"is_admin": user.IsAdmin,
		"exp":      now.Add(s.tokenDurat).Unix(),
		"iat":      now.Unix(),
	})

	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return tokenString, nil
}

// ValidateToken parses and validates a JWT token, returning the claims if valid.
func (s *AuthService) ValidateToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		s.logger.Debug("token validation failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, ErrInvalidToken
}

// Authenticate turns a token into the caller it identifies.
func (s *AuthService) Authenticate(tokenString string) (authz.Caller, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return authz.Caller{}, err
	}
	return CallerFromClaims(claims)
}

// CallerFromClaims reads the identity claims written by LoginUser.
func CallerFromClaims(claims jwt.MapClaims) (authz.Caller, error) {
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return authz.Caller{}, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}
	username, _ := claims["username"].(string)
	isAdmin, _ := claims["is_admin"].(bool)
	return authz.Caller{UserID: userID, Username: username, IsAdmin: isAdmin}, nil
}

// Me returns the account behind caller.
func (s *AuthService) Me(ctx context.Context, caller authz.Caller) (*models.User, error) {
	if !caller.Authenticated() {
		return nil, authz.ErrUnauthenticated
	}
	user, err := s.userRepo.GetByID(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	user.Password = ""
	return user, nil
}
