package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onterapia/teleconsulta/internal/platform/db"
	"github.com/onterapia/teleconsulta/pkg/pagination"
)

type queryable interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// PGStore keeps blobs in the blob_object table.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return s.pool
}

const blobColumns = `id, file_name, content_type, size, owner_id, category, hash, tags, created_at`

func scanMeta(row pgx.Row) (*BlobMetadata, error) {
	var m BlobMetadata
	if err := row.Scan(&m.ID, &m.FileName, &m.ContentType, &m.Size, &m.OwnerID, &m.Category, &m.Hash, &m.Tags, &m.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *PGStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	data, err := prepare(&meta, content, time.Now())
	if err != nil {
		return nil, err
	}
	_, err = s.conn(ctx).Exec(ctx, `
		INSERT INTO blob_object (`+blobColumns+`, content)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		meta.ID, meta.FileName, meta.ContentType, meta.Size, meta.OwnerID,
		meta.Category, meta.Hash, meta.Tags, meta.CreatedAt, data,
	)
	if err != nil {
		return nil, fmt.Errorf("insert blob: %w", err)
	}
	return &meta, nil
}

func (s *PGStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	var m BlobMetadata
	var data []byte
	err := s.conn(ctx).QueryRow(ctx, `SELECT `+blobColumns+`, content FROM blob_object WHERE id = $1`, id).
		Scan(&m.ID, &m.FileName, &m.ContentType, &m.Size, &m.OwnerID, &m.Category, &m.Hash, &m.Tags, &m.CreatedAt, &data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), &m, nil
}

func (s *PGStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	return scanMeta(s.conn(ctx).QueryRow(ctx, `SELECT `+blobColumns+` FROM blob_object WHERE id = $1`, id))
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	tag, err := s.conn(ctx).Exec(ctx, `DELETE FROM blob_object WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}

func (s *PGStore) ListByOwner(ctx context.Context, ownerID, category string, limit, offset int) ([]*BlobMetadata, int, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	var total int
	err := s.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM blob_object
		WHERE owner_id = $1 AND ($2 = '' OR category = $2)`, ownerID, category).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.conn(ctx).Query(ctx, `
		SELECT `+blobColumns+` FROM blob_object
		WHERE owner_id = $1 AND ($2 = '' OR category = $2)
		ORDER BY created_at DESC, id
		LIMIT $3 OFFSET $4`, ownerID, category, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*BlobMetadata
	for rows.Next() {
		m, err := scanMeta(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, m)
	}
	return items, total, rows.Err()
}
