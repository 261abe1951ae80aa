package pg_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/coachkit/creditledger/pkg/pg"
)

func TestErrorClassifiers(t *testing.T) {
	t.Parallel()

	wrap := func(code string) error {
		return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code})
	}

	tests := []struct {
		name      string
		err       error
		notFound  bool
		duplicate bool
		fk        bool
		conflict  bool
	}{
		{name: "nil", err: nil},
		{name: "no rows", err: fmt.Errorf("query: %w", pgx.ErrNoRows), notFound: true},
		{name: "unique violation", err: wrap("23505"), duplicate: true},
		{name: "foreign key", err: wrap("23503"), fk: true},
		{name: "serialization failure", err: wrap("40001"), conflict: true},
		{name: "deadlock", err: wrap("40P01"), conflict: true},
		{name: "plain error", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.notFound, pg.IsNotFoundError(tt.err))
			assert.Equal(t, tt.duplicate, pg.IsDuplicateKeyError(tt.err))
			assert.Equal(t, tt.fk, pg.IsForeignKeyViolationError(tt.err))
			assert.Equal(t, tt.conflict, pg.IsConflictError(tt.err))
		})
	}
}

func TestConnect_EmptyConnectionString(t *testing.T) {
	t.Parallel()

	_, err := pg.Connect(t.Context(), pg.Config{})
	assert.ErrorIs(t, err, pg.ErrEmptyConnectionString)
}
