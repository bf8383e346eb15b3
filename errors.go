package blazeorm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KipianiNikoloz/blazeorm/internal/redact"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested instance does not exist.
	ErrNotFound = errors.New("blazeorm: instance not found")

	// ErrNotSingular is returned when a query that expects exactly one result
	// returns zero or multiple results.
	ErrNotSingular = errors.New("blazeorm: instance not singular")

	// ErrInstanceDeleted is returned when a deleted instance is saved again.
	ErrInstanceDeleted = errors.New("blazeorm: instance was deleted")

	// ErrRegistryFrozen is returned when entities are registered after Freeze.
	ErrRegistryFrozen = errors.New("blazeorm: registry is frozen")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("blazeorm: session is closed")
)

// UnknownFieldError is returned when a predicate, sort key or lookup names a
// field the entity does not declare.
type UnknownFieldError struct {
	Entity string
	Field  string
}

// Error returns the error string.
func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("blazeorm: unknown field %q on %s", e.Field, e.Entity)
}

// NewUnknownFieldError returns a new UnknownFieldError.
func NewUnknownFieldError(entity, field string) *UnknownFieldError {
	return &UnknownFieldError{Entity: entity, Field: field}
}

// IsUnknownField returns true if the error is an UnknownFieldError.
func IsUnknownField(err error) bool {
	var e *UnknownFieldError
	return errors.As(err, &e)
}

// UnsupportedEagerStrategyError is returned when a relation path is requested
// with a fetch strategy it cannot be loaded with.
type UnsupportedEagerStrategyError struct {
	Path     string
	Strategy string
	Reason   string
}

// Error returns the error string.
func (e *UnsupportedEagerStrategyError) Error() string {
	msg := fmt.Sprintf("blazeorm: relation path %q cannot be loaded by %s", e.Path, e.Strategy)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// NewUnsupportedEagerStrategyError returns a new UnsupportedEagerStrategyError.
func NewUnsupportedEagerStrategyError(path, strategy, reason string) *UnsupportedEagerStrategyError {
	return &UnsupportedEagerStrategyError{Path: path, Strategy: strategy, Reason: reason}
}

// IsUnsupportedEagerStrategy returns true if the error is an UnsupportedEagerStrategyError.
func IsUnsupportedEagerStrategy(err error) bool {
	var e *UnsupportedEagerStrategyError
	return errors.As(err, &e)
}

// DialectMismatchError is returned when a statement compiled for one dialect
// is executed by a session bound to another.
type DialectMismatchError struct {
	Statement string
	Session   string
}

// Error returns the error string.
func (e *DialectMismatchError) Error() string {
	return fmt.Sprintf("blazeorm: statement compiled for %s executed on %s session", e.Statement, e.Session)
}

// NewDialectMismatchError returns a new DialectMismatchError.
func NewDialectMismatchError(statement, session string) *DialectMismatchError {
	return &DialectMismatchError{Statement: statement, Session: session}
}

// IsDialectMismatch returns true if the error is a DialectMismatchError.
func IsDialectMismatch(err error) bool {
	var e *DialectMismatchError
	return errors.As(err, &e)
}

// NoActiveSessionError is returned when an unbound query runs outside an
// active session scope.
type NoActiveSessionError struct {
	Op string
}

// Error returns the error string.
func (e *NoActiveSessionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("blazeorm: no active session for %s", e.Op)
	}
	return "blazeorm: no active session"
}

// IsNoActiveSession returns true if the error is a NoActiveSessionError.
func IsNoActiveSession(err error) bool {
	var e *NoActiveSessionError
	return errors.As(err, &e)
}

// IdentityConflictError reports two live instances claiming the same key.
// It always indicates a defect.
type IdentityConflictError struct {
	Entity string
	Key    any
}

// Error returns the error string.
func (e *IdentityConflictError) Error() string {
	return fmt.Sprintf("blazeorm: identity conflict for %s(%v)", e.Entity, e.Key)
}

// IsIdentityConflict returns true if the error is an IdentityConflictError.
func IsIdentityConflict(err error) bool {
	var e *IdentityConflictError
	return errors.As(err, &e)
}

// TransactionStateError is returned when a transaction operation is invalid
// for the current nesting state.
type TransactionStateError struct {
	Op    string
	State string
	Err   error // Optional: the failure that put the transaction in State
}

// Error returns the error string.
func (e *TransactionStateError) Error() string {
	msg := fmt.Sprintf("blazeorm: cannot %s transaction in state %s", e.Op, e.State)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *TransactionStateError) Unwrap() error {
	return e.Err
}

// IsTransactionState returns true if the error is a TransactionStateError.
func IsTransactionState(err error) bool {
	var e *TransactionStateError
	return errors.As(err, &e)
}

// AdapterExecutionError wraps a failure reported by the backend, together
// with the statement that failed. Args are already redacted.
type AdapterExecutionError struct {
	SQL  string
	Args []any
	Err  error
}

// Error returns the error string.
func (e *AdapterExecutionError) Error() string {
	return fmt.Sprintf("blazeorm: executing %q %v: %v", e.SQL, e.Args, e.Err)
}

// Unwrap returns the underlying error.
func (e *AdapterExecutionError) Unwrap() error {
	return e.Err
}

// NewAdapterExecutionError returns a new AdapterExecutionError. Sensitive
// arguments are masked before they are stored.
func NewAdapterExecutionError(sql string, args []any, err error) *AdapterExecutionError {
	return &AdapterExecutionError{SQL: sql, Args: redact.Args(args), Err: err}
}

// IsAdapterExecution returns true if the error is an AdapterExecutionError.
func IsAdapterExecution(err error) bool {
	var e *AdapterExecutionError
	return errors.As(err, &e)
}

// NotFoundError represents an error when an instance is not found.
type NotFoundError struct {
	label string
	id    any // Optional: the key that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("blazeorm: %s not found (id=%v)", e.label, e.id)
	}
	return fmt.Sprintf("blazeorm: %s not found", e.label)
}

// Is reports whether the target error matches NotFoundError.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Label returns the entity label.
func (e *NotFoundError) Label() string {
	return e.label
}

// ID returns the key that was searched for, if available.
func (e *NotFoundError) ID() any {
	return e.id
}

// NewNotFoundError returns a new NotFoundError for the given entity.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a new NotFoundError with the key that was searched for.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// NotSingularError represents an error when a query expects a singular result
// but receives zero or multiple results.
type NotSingularError struct {
	label string
	count int // Number of results returned (-1 if unknown)
}

// Error returns the error string.
func (e *NotSingularError) Error() string {
	if e.count >= 0 {
		return fmt.Sprintf("blazeorm: %s not singular (got %d results, expected 1)", e.label, e.count)
	}
	return fmt.Sprintf("blazeorm: %s not singular", e.label)
}

// Is reports whether the target error matches NotSingularError.
func (e *NotSingularError) Is(err error) bool {
	return err == ErrNotSingular
}

// Count returns the number of results, or -1 if unknown.
func (e *NotSingularError) Count() int {
	return e.count
}

// NewNotSingularErrorWithCount returns a new NotSingularError with the result count.
func NewNotSingularErrorWithCount(label string, count int) *NotSingularError {
	return &NotSingularError{label: label, count: count}
}

// IsNotSingular returns true if the error is a NotSingularError.
func IsNotSingular(err error) bool {
	if err == nil {
		return false
	}
	var e *NotSingularError
	return errors.As(err, &e) || errors.Is(err, ErrNotSingular)
}

// NotLoadedError is returned when a relation cache is read before it was resolved.
type NotLoadedError struct {
	relation string
}

// Error returns the error string.
func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("blazeorm: relation %q was not loaded", e.relation)
}

// NewNotLoadedError returns a new NotLoadedError for the given relation.
func NewNotLoadedError(relation string) *NotLoadedError {
	return &NotLoadedError{relation: relation}
}

// IsNotLoaded returns true if the error is a NotLoadedError.
func IsNotLoaded(err error) bool {
	var e *NotLoadedError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("blazeorm: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	var e ConstraintError
	return errors.As(err, &e)
}

// ValidationError represents a validation error for a field value.
type ValidationError struct {
	Name string // Field name
	Err  error  // Underlying validation error
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("blazeorm: validator failed for field %q: %s", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError returns a new ValidationError for the given field.
func NewValidationError(name string, err error) *ValidationError {
	return &ValidationError{Name: name, Err: err}
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("blazeorm: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "blazeorm: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("blazeorm: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// MutationError wraps a flush failure with the entity and operation that failed.
type MutationError struct {
	Entity string // Entity being mutated
	Op     string // Operation (insert, update, delete, link, unlink)
	Err    error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("blazeorm: %s %s: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	var e *MutationError
	return errors.As(err, &e)
}
