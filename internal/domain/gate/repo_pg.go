package gate

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/onterapia/teleconsulta/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type consentRepoPG struct{ pool *pgxpool.Pool }

func NewConsentRepoPG(pool *pgxpool.Pool) ConsentRepository {
	return &consentRepoPG{pool: pool}
}

func (r *consentRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const consentCols = `id, user_id, room_name, accepted, terms_version, camera, microphone, recorded_at`

func (r *consentRepoPG) scanConsent(row pgx.Row) (*ConsentRecord, error) {
	var c ConsentRecord
	err := row.Scan(&c.ID, &c.UserID, &c.RoomName, &c.Accepted, &c.TermsVersion,
		&c.Camera, &c.Microphone, &c.RecordedAt)
	return &c, err
}

func (r *consentRepoPG) Create(ctx context.Context, c *ConsentRecord) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consent_record (id, user_id, room_name, accepted, terms_version, camera, microphone)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING recorded_at`,
		c.ID, c.UserID, c.RoomName, c.Accepted, c.TermsVersion, c.Camera, c.Microphone,
	).Scan(&c.RecordedAt)
}

func (r *consentRepoPG) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*ConsentRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM consent_record WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+consentCols+` FROM consent_record WHERE user_id = $1 ORDER BY recorded_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ConsentRecord
	for rows.Next() {
		c, err := r.scanConsent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}
