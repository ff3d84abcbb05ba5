// Package catalog stores the ordered list of known acceptance criteria.
//
// The first criterion by position is the canonical default used when a test
// case arrives without any linkage.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a criterion does not exist.
	ErrNotFound = errors.New("acceptance criterion not found")
	// ErrDuplicate is returned when a criterion id is already stored.
	ErrDuplicate = errors.New("acceptance criterion already exists")
)

// Criterion is a known acceptance criterion.
type Criterion struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Position  int    `json:"position"`
	CreatedAt string `json:"created_at"`
}

// Store manages acceptance criteria persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a catalog store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Add appends a criterion. A blank id is replaced by AC-<position>.
func (s *Store) Add(ctx context.Context, id, text string) (Criterion, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return Criterion{}, fmt.Errorf("begin add criterion: %w", err)
	}
	c, err := insert(ctx, tx, id, text, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		_ = tx.Rollback()
		return Criterion{}, err
	}
	if err := tx.Commit(); err != nil {
		return Criterion{}, fmt.Errorf("commit add criterion: %w", err)
	}
	return c, nil
}

// Import appends criteria in order within a single transaction.
func (s *Store) Import(ctx context.Context, items []Criterion) ([]Criterion, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin import criteria: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	out := make([]Criterion, 0, len(items))
	for _, item := range items {
		c, err := insert(ctx, tx, item.ID, item.Text, now)
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		out = append(out, c)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import criteria: %w", err)
	}
	return out, nil
}

func insert(ctx context.Context, tx *sql.Tx, id, text, now string) (Criterion, error) {
	var maxPos int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position), 0) FROM acceptance_criteria`).Scan(&maxPos); err != nil {
		return Criterion{}, fmt.Errorf("read max position: %w", err)
	}
	pos := maxPos + 1
	id = strings.TrimSpace(id)
	if id == "" {
		id = fmt.Sprintf("AC-%d", pos)
	}
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM acceptance_criteria WHERE id=?`, id).Scan(&exists); err != nil {
		return Criterion{}, fmt.Errorf("check criterion: %w", err)
	}
	if exists > 0 {
		return Criterion{}, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO acceptance_criteria(id, position, text, created_at) VALUES(?, ?, ?, ?)`,
		id, pos, text, now); err != nil {
		return Criterion{}, fmt.Errorf("insert criterion: %w", err)
	}
	return Criterion{ID: id, Text: text, Position: pos, CreatedAt: now}, nil
}

// List returns all criteria ordered by position.
func (s *Store) List(ctx context.Context) ([]Criterion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, position, created_at FROM acceptance_criteria ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query criteria: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Criterion
	for rows.Next() {
		var c Criterion
		if err := rows.Scan(&c.ID, &c.Text, &c.Position, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan criterion: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate criteria: %w", err)
	}
	return out, nil
}

// IDs returns the ordered criterion ids.
func (s *Store) IDs(ctx context.Context) ([]string, error) {
	items, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(items))
	for _, c := range items {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// Get fetches a criterion by id.
func (s *Store) Get(ctx context.Context, id string) (Criterion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, text, position, created_at FROM acceptance_criteria WHERE id=?`, id)
	var c Criterion
	if err := row.Scan(&c.ID, &c.Text, &c.Position, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Criterion{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Criterion{}, fmt.Errorf("read criterion: %w", err)
	}
	return c, nil
}

// Remove deletes a criterion. Positions of the remaining criteria keep their order.
func (s *Store) Remove(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM acceptance_criteria WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete criterion: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
