package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ashureev/opsbot/internal/domain"
)

// Supported drivers.
const (
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

// SQLStore implements Repository on database/sql. Each operation takes its
// own connection from the pool and returns it on every exit path.
type SQLStore struct {
	db     *sql.DB
	driver string
}

func newSQLStore(ctx context.Context, db *sql.DB, driver string, schema []string) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &SQLStore{db: db, driver: driver}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize schema: %w", err)
		}
	}
	return s, nil
}

// Driver returns the database driver name.
func (s *SQLStore) Driver() string {
	return s.driver
}

// rebind converts ? placeholders to $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPgx {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) wrap(op string, err error) error {
	if s.driver == DriverSQLite && isSQLiteConflict(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrBusy, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Insert implements Repository.
func (s *SQLStore) Insert(ctx context.Context, kind domain.Kind, values ...string) (err error) {
	t, err := tableFor(kind)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return s.wrap("acquire connection", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("begin transaction", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Warn("Rollback failed", "table", t.name, "error", rbErr)
			}
		}
	}()

	query := s.rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (?)", t.name, t.column))
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return s.wrap("prepare insert", err)
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err = stmt.ExecContext(ctx, v); err != nil {
			return s.wrap("insert into "+t.name, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return s.wrap("commit", err)
	}
	return nil
}

// SelectAll implements Repository.
func (s *SQLStore) SelectAll(ctx context.Context, kind domain.Kind) ([]domain.Record, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, s.wrap("acquire connection", err)
	}
	defer conn.Close()

	query := fmt.Sprintf("SELECT id, %s FROM %s ORDER BY id", t.column, t.name)
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, s.wrap("query "+t.name, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close rows", "table", t.name, "error", closeErr)
		}
	}()

	var records []domain.Record
	for rows.Next() {
		var r domain.Record
		if err := rows.Scan(&r.ID, &r.Value); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", t.name, err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", t.name, err)
	}
	return records, nil
}

// Ping implements Repository.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements Repository.
func (s *SQLStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
