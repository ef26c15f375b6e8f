package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/opsbot/internal/domain"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, Path: filepath.Join(t.TempDir(), "data", "bot.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStore_InsertAndSelect(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, domain.KindEmail, "a@b.com", "c@d.com"))
	require.NoError(t, s.Insert(ctx, domain.KindEmail, "a@b.com"))
	require.NoError(t, s.Insert(ctx, domain.KindPhone, "89991234567"))

	emails, err := s.SelectAll(ctx, domain.KindEmail)
	require.NoError(t, err)
	require.Equal(t, []domain.Record{
		{ID: 1, Value: "a@b.com"},
		{ID: 2, Value: "c@d.com"},
		{ID: 3, Value: "a@b.com"},
	}, emails)

	phones, err := s.SelectAll(ctx, domain.KindPhone)
	require.NoError(t, err)
	require.Equal(t, []domain.Record{{ID: 1, Value: "89991234567"}}, phones)
}

func TestSQLStore_EmptyTable(t *testing.T) {
	s := newTestStore(t)
	records, err := s.SelectAll(context.Background(), domain.KindPhone)
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSQLStore_InsertIsAllOrNothing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Insert(ctx, domain.KindEmail, "ok@mail.ru", strings.Repeat("x", 300)+"@mail.ru")
	require.Error(t, err)

	records, err := s.SelectAll(ctx, domain.KindEmail)
	require.NoError(t, err)
	require.Empty(t, records, "failed batch must be rolled back")

	// The connection went back to the pool in a usable state.
	require.NoError(t, s.Insert(ctx, domain.KindEmail, "ok@mail.ru"))
	records, err = s.SelectAll(ctx, domain.KindEmail)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestSQLStore_UnknownKind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Insert(ctx, domain.Kind("passport"), "1234")
	require.True(t, errors.Is(err, ErrUnknownKind))
	_, err = s.SelectAll(ctx, domain.Kind("passport"))
	require.ErrorIs(t, err, ErrUnknownKind)
}

func TestSQLStore_InsertNothing(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Insert(context.Background(), domain.KindPhone))
}

func TestSQLStore_ConcurrentInserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				if err := s.Insert(ctx, domain.KindPhone, fmt.Sprintf("8999%03d%04d", w, i)); err != nil {
					errs <- err
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	records, err := s.SelectAll(ctx, domain.KindPhone)
	require.NoError(t, err)
	require.Len(t, records, 80)
}

func TestSQLStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.db")
	ctx := context.Background()

	s, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.Insert(ctx, domain.KindPhone, "+79991234567"))
	require.NoError(t, s.Close())

	s, err = NewSQLite(ctx, path)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))
	records, err := s.SelectAll(ctx, domain.KindPhone)
	require.NoError(t, err)
	require.Equal(t, []domain.Record{{ID: 1, Value: "+79991234567"}}, records)
}

func TestSQLStore_Rebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPgx}
	require.Equal(t, "INSERT INTO t (a, b) VALUES ($1, $2)", pg.rebind("INSERT INTO t (a, b) VALUES (?, ?)"))

	lite := &SQLStore{driver: DriverSQLite}
	require.Equal(t, "SELECT ?", lite.rebind("SELECT ?"))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"})
	require.Error(t, err)
}

func TestIsSQLiteConflict(t *testing.T) {
	require.True(t, isSQLiteConflict(errors.New("database is locked (5) (SQLITE_BUSY)")))
	require.False(t, isSQLiteConflict(errors.New("constraint failed")))
	require.False(t, isSQLiteConflict(nil))

	s := &SQLStore{driver: DriverSQLite}
	require.ErrorIs(t, s.wrap("insert", errors.New("database is locked")), ErrBusy)
}
