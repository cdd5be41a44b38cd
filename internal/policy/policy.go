// Package policy decides who may do what. It is stateless: every decision is
// a function of the caller and, for ownership checks, the owner of the
// resource.
package policy

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("not allowed")
	ErrNoProfile       = errors.New("no member profile for this identity")
)

// Action names an operation subject to authorization.
type Action string

const (
	ReadCatalog      Action = "read_catalog"
	WriteCatalog     Action = "write_catalog"
	ReadMembers      Action = "read_members"
	WriteMembers     Action = "write_members"
	ListTransactions Action = "list_transactions"
	Checkout         Action = "checkout"
	Return           Action = "return"
	RunTasks         Action = "run_tasks"
	ReadAudit        Action = "read_audit"
)

// Caller is the identity behind a request. The zero value is anonymous.
type Caller struct {
	UserID   uint
	Username string
	IsAdmin  bool
	MemberID uint // Zero when the identity has no member profile
}

// Anonymous is the caller for unauthenticated requests.
var Anonymous = Caller{}

func (c Caller) Authenticated() bool {
	return c.UserID != 0
}

func (c Caller) HasProfile() bool {
	return c.MemberID != 0
}

func (c Caller) String() string {
	if !c.Authenticated() {
		return "anonymous"
	}
	if c.IsAdmin {
		return fmt.Sprintf("admin %s (user %d)", c.Username, c.UserID)
	}
	return fmt.Sprintf("%s (user %d)", c.Username, c.UserID)
}

// Authorize returns nil when caller may perform action, ErrUnauthenticated
// when an identity is required and missing, and ErrForbidden otherwise.
func Authorize(caller Caller, action Action) error {
	switch action {
	case ReadCatalog:
		return nil
	}

	if !caller.Authenticated() {
		return ErrUnauthenticated
	}

	switch action {
	case WriteCatalog, ReadMembers, WriteMembers, RunTasks, ReadAudit:
		if !caller.IsAdmin {
			return fmt.Errorf("%w: %s requires an administrator", ErrForbidden, action)
		}
		return nil
	case ListTransactions:
		return nil
	case Checkout:
		if !caller.HasProfile() {
			return fmt.Errorf("%w: %w", ErrForbidden, ErrNoProfile)
		}
		return nil
	case Return:
		if !caller.HasProfile() && !caller.IsAdmin {
			return fmt.Errorf("%w: %w", ErrForbidden, ErrNoProfile)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown action %q", ErrForbidden, action)
	}
}

// CanActFor reports whether caller may act on a record owned by ownerUserID.
func CanActFor(caller Caller, ownerUserID uint) bool {
	if !caller.Authenticated() {
		return false
	}
	return caller.IsAdmin || caller.UserID == ownerUserID
}

// TransactionScope returns the member whose transactions caller may see, or
// nil when caller may see every member's transactions.
func TransactionScope(caller Caller) (*uint, error) {
	if !caller.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if caller.IsAdmin {
		return nil, nil
	}
	memberID := caller.MemberID
	return &memberID, nil
}
