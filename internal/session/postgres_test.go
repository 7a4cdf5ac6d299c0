package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoclient/internal/domain"
)

// stubExecutor keeps rows in a map keyed by session name.
type stubExecutor struct {
	rows map[string][]any
	err  error
}

func newStubExecutor() *stubExecutor {
	return &stubExecutor{rows: map[string][]any{}}
}

func (s *stubExecutor) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	if s.err != nil {
		return pgconn.CommandTag{}, s.err
	}
	switch {
	case strings.Contains(query, "insert into client_sessions"):
		s.rows[args[0].(string)] = []any{args[1], args[2], args[3]}
	case strings.Contains(query, "delete from client_sessions"):
		delete(s.rows, args[0].(string))
	}
	return pgconn.CommandTag{}, nil
}

func (s *stubExecutor) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	if s.err != nil {
		return stubRow{err: s.err}
	}
	values, ok := s.rows[args[0].(string)]
	if !ok {
		return stubRow{err: pgx.ErrNoRows}
	}
	return stubRow{values: values}
}

type stubRow struct {
	values []any
	err    error
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.values) {
		return errors.New("dest mismatch")
	}
	*dest[0].(*string) = r.values[0].(string)
	*dest[1].(*string) = r.values[1].(string)
	*dest[2].(*[]byte) = r.values[2].([]byte)
	return nil
}

func TestPostgresContract(t *testing.T) {
	store, err := NewPostgres(newStubExecutor(), "default")
	require.NoError(t, err)
	storeContract(t, store)
}

func TestPostgresStoresProfileAsJSON(t *testing.T) {
	exec := newStubExecutor()
	store, err := NewPostgres(exec, "work")
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), sampleCredentials()))

	row, ok := exec.rows["work"]
	require.True(t, ok)
	var profile domain.Profile
	require.NoError(t, json.Unmarshal(row[2].([]byte), &profile))
	assert.Equal(t, "neo", profile.Username)
}

func TestPostgresPropagatesErrors(t *testing.T) {
	exec := newStubExecutor()
	exec.err = errors.New("connection reset")
	store, err := NewPostgres(exec, "default")
	require.NoError(t, err)

	_, err = store.Get(context.Background())
	assert.Error(t, err)
	assert.Error(t, store.Set(context.Background(), sampleCredentials()))
	assert.Error(t, store.Clear(context.Background()))
}

func TestNewPostgresRequiresName(t *testing.T) {
	_, err := NewPostgres(newStubExecutor(), "")
	assert.Error(t, err)
}

func TestPostgresTreatsHalfPairAsAnonymous(t *testing.T) {
	exec := newStubExecutor()
	exec.rows["default"] = []any{"access-1", "", []byte(`{"username":"neo"}`)}
	store, err := NewPostgres(exec, "default")
	require.NoError(t, err)

	creds, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, creds)
}
