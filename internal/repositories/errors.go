package repositories

import "errors"

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrDuplicateName     = errors.New("product name already exists")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStockLimit        = errors.New("stock limit exceeded")
	ErrUserNotFound      = errors.New("user not found")
	ErrDuplicateUser     = errors.New("user already exists")
)
