// Package authz decides which callers may run which product operations.
package authz

import (
	"errors"
	"fmt"
)

// Operation names one endpoint operation.
type Operation string

const (
	OpList            Operation = "list"
	OpRetrieve        Operation = "retrieve"
	OpCreate          Operation = "create"
	OpUpdate          Operation = "update"
	OpDelete          Operation = "delete"
	OpSetAvailability Operation = "set_availability"
	OpMarkUnavailable Operation = "mark_unavailable"
	OpListAvailable   Operation = "list_available"
	OpAdjustStock     Operation = "adjust_stock"
)

var (
	ErrUnauthenticated  = errors.New("authentication credentials were not provided")
	ErrPermissionDenied = errors.New("you do not have permission to perform this action")
)

// Caller is the identity behind a request. The zero value is anonymous.
type Caller struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
}

// Authenticated reports whether the caller presented a valid token.
func (c Caller) Authenticated() bool {
	return c.UserID != ""
}

// Authorizer answers whether caller may run op.
type Authorizer interface {
	Can(op Operation, caller Caller) bool
}

// Policy selects how generic operations are gated.
type Policy string

const (
	// PolicyReadOnly lets anyone read and requires authentication to write.
	PolicyReadOnly Policy = "read_only"
	// PolicyAuthenticated requires authentication for everything.
	PolicyAuthenticated Policy = "authenticated"
	// PolicyPublic opens every generic operation.
	PolicyPublic Policy = "public"
)

// ParsePolicy validates a configured policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyReadOnly, PolicyAuthenticated, PolicyPublic:
		return p, nil
	}
	return "", fmt.Errorf("unknown access policy %q", s)
}

// Can implements Authorizer. mark_unavailable is admin-only and
// list_available is public under every policy.
func (p Policy) Can(op Operation, caller Caller) bool {
	switch op {
	case OpMarkUnavailable:
		return caller.Authenticated() && caller.IsAdmin
	case OpListAvailable:
		return true
	}

	switch p {
	case PolicyPublic:
		return true
	case PolicyAuthenticated:
		return caller.Authenticated()
	default:
		if isRead(op) {
			return true
		}
		return caller.Authenticated()
	}
}

func isRead(op Operation) bool {
	return op == OpList || op == OpRetrieve
}

// Check returns ErrUnauthenticated for a refused anonymous caller and
// ErrPermissionDenied for a refused authenticated one.
func Check(a Authorizer, op Operation, caller Caller) error {
	if a.Can(op, caller) {
		return nil
	}
	if !caller.Authenticated() {
		return fmt.Errorf("%s: %w", op, ErrUnauthenticated)
	}
	return fmt.Errorf("%s: %w", op, ErrPermissionDenied)
}
