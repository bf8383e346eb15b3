package blazeorm_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KipianiNikoloz/blazeorm"
	"github.com/KipianiNikoloz/blazeorm/internal/redact"
)

func TestNotFoundError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		err := blazeorm.NewNotFoundError("Author")
		assert.Equal(t, "blazeorm: Author not found", err.Error())
		err = blazeorm.NewNotFoundErrorWithID("Author", 7)
		assert.Equal(t, "blazeorm: Author not found (id=7)", err.Error())
		assert.Equal(t, 7, err.ID())
		assert.Equal(t, "Author", err.Label())
	})

	t.Run("IsNotFound", func(t *testing.T) {
		err := blazeorm.NewNotFoundError("Book")
		assert.True(t, errors.Is(err, blazeorm.ErrNotFound))
		assert.True(t, blazeorm.IsNotFound(fmt.Errorf("wrapper: %w", err)))
		assert.True(t, blazeorm.IsNotFound(blazeorm.ErrNotFound))
		assert.False(t, blazeorm.IsNotFound(errors.New("other error")))
		assert.False(t, blazeorm.IsNotFound(nil))
	})
}

func TestNotSingularError(t *testing.T) {
	err := blazeorm.NewNotSingularErrorWithCount("Post", 3)
	assert.Equal(t, "blazeorm: Post not singular (got 3 results, expected 1)", err.Error())
	assert.Equal(t, 3, err.Count())
	assert.True(t, errors.Is(err, blazeorm.ErrNotSingular))
	assert.True(t, blazeorm.IsNotSingular(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, blazeorm.IsNotSingular(nil))
}

func TestNotLoadedError(t *testing.T) {
	err := blazeorm.NewNotLoadedError("posts")
	assert.EqualError(t, err, `blazeorm: relation "posts" was not loaded`)
	assert.True(t, blazeorm.IsNotLoaded(fmt.Errorf("wrapper: %w", err)))
	assert.False(t, blazeorm.IsNotLoaded(blazeorm.ErrNotSingular))
}

func TestTaxonomy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		is   func(error) bool
		msg  string
	}{
		{
			name: "UnknownField",
			err:  blazeorm.NewUnknownFieldError("Author", "nmae"),
			is:   blazeorm.IsUnknownField,
			msg:  `blazeorm: unknown field "nmae" on Author`,
		},
		{
			name: "UnsupportedEagerStrategy",
			err:  blazeorm.NewUnsupportedEagerStrategyError("books", "join", "many-to-many"),
			is:   blazeorm.IsUnsupportedEagerStrategy,
			msg:  `blazeorm: relation path "books" cannot be loaded by join: many-to-many`,
		},
		{
			name: "DialectMismatch",
			err:  blazeorm.NewDialectMismatchError("mysql", "postgres"),
			is:   blazeorm.IsDialectMismatch,
			msg:  "blazeorm: statement compiled for mysql executed on postgres session",
		},
		{
			name: "NoActiveSession",
			err:  &blazeorm.NoActiveSessionError{Op: "All"},
			is:   blazeorm.IsNoActiveSession,
			msg:  "blazeorm: no active session for All",
		},
		{
			name: "IdentityConflict",
			err:  &blazeorm.IdentityConflictError{Entity: "Book", Key: int64(1)},
			is:   blazeorm.IsIdentityConflict,
			msg:  "blazeorm: identity conflict for Book(1)",
		},
		{
			name: "TransactionState",
			err:  &blazeorm.TransactionStateError{Op: "commit", State: "idle"},
			is:   blazeorm.IsTransactionState,
			msg:  "blazeorm: cannot commit transaction in state idle",
		},
		{
			name: "Validation",
			err:  blazeorm.NewValidationError("name", errors.New("too long")),
			is:   blazeorm.IsValidationError,
			msg:  `blazeorm: validator failed for field "name": too long`,
		},
		{
			name: "Mutation",
			err:  blazeorm.NewMutationError("Author", "insert", errors.New("boom")),
			is:   blazeorm.IsMutationError,
			msg:  "blazeorm: insert Author: boom",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.msg, tt.err.Error())
			assert.True(t, tt.is(tt.err))
			assert.True(t, tt.is(fmt.Errorf("wrapped: %w", tt.err)))
			assert.False(t, tt.is(errors.New("other")))
		})
	}
}

func TestAdapterExecutionError(t *testing.T) {
	cause := errors.New("no such table: users")
	err := blazeorm.NewAdapterExecutionError(
		`SELECT * FROM "users" WHERE "users"."password" = ?`,
		[]any{redact.Mark("hunter2")},
		cause,
	)
	require.ErrorIs(t, err, cause)
	assert.True(t, blazeorm.IsAdapterExecution(err))
	assert.Equal(t, []any{redact.Mask}, err.Args)
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestTransactionStateErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &blazeorm.TransactionStateError{Op: "begin", State: "failed", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestAggregateError(t *testing.T) {
	assert.Nil(t, blazeorm.NewAggregateError(nil, nil))

	single := errors.New("one")
	assert.Equal(t, single, blazeorm.NewAggregateError(nil, single))

	e1 := blazeorm.NewValidationError("name", errors.New("required"))
	e2 := blazeorm.NewValidationError("age", errors.New("negative"))
	err := blazeorm.NewAggregateError(e1, e2)
	var agg *blazeorm.AggregateError
	require.ErrorAs(t, err, &agg)
	assert.Len(t, agg.Errors, 2)
	assert.Contains(t, err.Error(), "multiple errors")
	assert.ErrorIs(t, err, e2)
	assert.True(t, blazeorm.IsValidationError(err))
}

func TestConstraintError(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: users.email")
	err := blazeorm.NewConstraintError("unique", cause)
	assert.True(t, blazeorm.IsConstraintError(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "blazeorm: constraint failed: unique", err.Error())
}
