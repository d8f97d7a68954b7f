package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// The table holds a single row.
const cursorRowID = 1

// CursorRepository stores the update feed offset in PostgreSQL.
// It satisfies cursor.Store.
type CursorRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

func NewCursorRepository(db *sqlx.DB, logger *zap.Logger) *CursorRepository {
	return &CursorRepository{db: db, logger: logger}
}

func (r *CursorRepository) Load(ctx context.Context) (int, error) {
	var offset int
	query := `SELECT next_offset FROM update_cursor WHERE id = $1`
	err := r.db.GetContext(ctx, &offset, query, cursorRowID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return offset, nil
}

func (r *CursorRepository) Save(ctx context.Context, offset int) error {
	query := `INSERT INTO update_cursor (id, next_offset, updated_at) VALUES ($1, $2, now())
	          ON CONFLICT (id) DO UPDATE SET next_offset = EXCLUDED.next_offset, updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query, cursorRowID, offset)
	if err != nil {
		r.logger.Error("Failed to save update cursor", zap.Int("offset", offset), zap.Error(err))
	}
	return err
}

func (r *CursorRepository) Close() error { return r.db.Close() }
