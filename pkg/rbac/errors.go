package rbac

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a referenced permission, role or grant does not exist
	ErrNotFound = errors.New("rbac: not found")
	// ErrDuplicateName is returned when a create or rename would violate name uniqueness
	ErrDuplicateName = errors.New("rbac: duplicate name")
	// ErrConflict is returned when a write lost a race with a concurrent modification
	ErrConflict = errors.New("rbac: conflict")
	// ErrStoreUnavailable is returned when the backing store fails
	ErrStoreUnavailable = errors.New("rbac: store unavailable")
	// ErrInvalidName is returned for empty names
	ErrInvalidName = errors.New("rbac: invalid name")
	// ErrInvalidSubject is returned when a subject type or id is empty
	ErrInvalidSubject = errors.New("rbac: invalid subject")
)

// Entity kinds used in error details
const (
	KindPermission = "permission"
	KindRole       = "role"
	KindGrant      = "grant"
)

// NotFoundError lists every name that failed to resolve
type NotFoundError struct {
	Kind  string
	Names []string
}

// NewNotFoundError creates a NotFoundError for the given kind and names
func NewNotFoundError(kind string, names ...string) *NotFoundError {
	return &NotFoundError{Kind: kind, Names: names}
}

func (e *NotFoundError) Error() string {
	switch len(e.Names) {
	case 0:
		return fmt.Sprintf("%s not found", e.Kind)
	case 1:
		return fmt.Sprintf("%s '%s' not found", e.Kind, e.Names[0])
	default:
		return fmt.Sprintf("%ss not found: %s", e.Kind, strings.Join(e.Names, ", "))
	}
}

// Is makes errors.Is(err, ErrNotFound) hold
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DuplicateNameError reports the name that is already taken
type DuplicateNameError struct {
	Kind string
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("%s '%s' already exists", e.Kind, e.Name)
}

// Is makes errors.Is(err, ErrDuplicateName) hold
func (e *DuplicateNameError) Is(target error) bool {
	return target == ErrDuplicateName
}

// StoreError wraps a failure of the backing store
type StoreError struct {
	Op  string
	Err error
}

// NewStoreError wraps err as a store failure of op. A nil err yields nil.
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

// Is makes errors.Is(err, ErrStoreUnavailable) hold
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// MissingNames returns the names carried by a NotFoundError anywhere in err's chain
func MissingNames(err error) []string {
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return nf.Names
	}
	return nil
}
