package selection

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/model"
)

// PostgresStore wraps all SQL used for the page_selections table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a store over an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a new selection record.
func (s *PostgresStore) Create(ctx context.Context, rec *model.SelectionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO page_selections (id, email, product_id, source_url, source_name, selected_pages, created_at, expires_at, access_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, rec.ID, rec.Email, nullable(rec.ProductID), nullable(rec.SourceURL), nullable(rec.SourceName),
		rec.SelectedPages, rec.CreatedAt, rec.ExpiresAt, rec.AccessCount)
	if err != nil {
		return fmt.Errorf("insert selection: %w", err)
	}
	return nil
}

// Get returns a record by id, or ErrNotFound.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.SelectionRecord, error) {
	var (
		rec        model.SelectionRecord
		productID  sql.NullString
		sourceURL  sql.NullString
		sourceName sql.NullString
	)
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, product_id, source_url, source_name, selected_pages, created_at, expires_at, access_count
		FROM page_selections WHERE id=$1
	`, id)
	if err := row.Scan(&rec.ID, &rec.Email, &productID, &sourceURL, &sourceName,
		&rec.SelectedPages, &rec.CreatedAt, &rec.ExpiresAt, &rec.AccessCount); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select selection: %w", err)
	}
	rec.ProductID = productID.String
	rec.SourceURL = sourceURL.String
	rec.SourceName = sourceName.String
	return &rec, nil
}

// IncrementAccess bumps the access counter by exactly one.
func (s *PostgresStore) IncrementAccess(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE page_selections SET access_count = access_count + 1 WHERE id=$1
	`, id)
	if err != nil {
		return fmt.Errorf("increment access: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
