package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/ecocycle/apiserver/types"
)

// RequestRepository handles persistence for pickup requests.
//
// Status transitions are conditional updates guarded on the current status
// so that concurrent collectors race to at most one winner; the loser sees
// ErrConflict instead of silently overwriting.
type RequestRepository struct {
	db *sql.DB
}

func NewRequestRepository(db *sql.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `
	r.id, r.user_id, r.collector_id, r.name, r.phone, r.address,
	r.category, r.description, r.status,
	r.created_at, r.accepted_at, r.rejected_at, r.completed_at,
	u.name, u.phone, c.name, c.phone`

const requestJoins = `
	FROM pickup_requests r
	JOIN users u ON u.id = r.user_id
	LEFT JOIN users c ON c.id = r.collector_id`

func (r *RequestRepository) Create(ctx context.Context, req types.PickupRequest) (types.PickupRequest, error) {
	req.Status = types.StatusPending
	req.CreatedAt = time.Now()

	const query = `
		INSERT INTO pickup_requests (user_id, name, phone, address, category, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		req.UserID,
		req.Name,
		req.Phone,
		req.Address,
		req.Category,
		req.Description,
		req.Status,
		req.CreatedAt,
	).Scan(&req.ID); err != nil {
		return types.PickupRequest{}, err
	}
	return req, nil
}

func (r *RequestRepository) Get(ctx context.Context, id int) (types.PickupRequest, error) {
	query := `SELECT` + requestColumns + requestJoins + ` WHERE r.id = $1`
	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.PickupRequest{}, ErrNotFound
		}
		return types.PickupRequest{}, err
	}
	return req, nil
}

// List returns all requests with joined identities, newest first.
func (r *RequestRepository) List(ctx context.Context) ([]types.PickupRequest, error) {
	query := `SELECT` + requestColumns + requestJoins + ` ORDER BY r.created_at DESC`
	return r.list(ctx, query)
}

// ListByUser returns only the requests created by the given consumer.
func (r *RequestRepository) ListByUser(ctx context.Context, userID int) ([]types.PickupRequest, error) {
	query := `SELECT` + requestColumns + requestJoins + ` WHERE r.user_id = $1 ORDER BY r.created_at DESC`
	return r.list(ctx, query, userID)
}

// Accept moves a pending request to accepted, claiming it for the given
// collector. The update is conditioned on status = pending; a request that
// is no longer pending yields ErrConflict, a missing one ErrNotFound.
func (r *RequestRepository) Accept(ctx context.Context, id, collectorID int) (types.PickupRequest, error) {
	const query = `
		UPDATE pickup_requests
		SET status = $1,
			collector_id = $2,
			accepted_at = $3
		WHERE id = $4 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, types.StatusAccepted, collectorID, time.Now(), id, types.StatusPending)
	if err != nil {
		return types.PickupRequest{}, err
	}
	if err := r.checkTransition(ctx, result, id); err != nil {
		return types.PickupRequest{}, err
	}
	return r.Get(ctx, id)
}

// Reject moves a pending request to rejected, with the same conditional
// guard as Accept.
func (r *RequestRepository) Reject(ctx context.Context, id int) (types.PickupRequest, error) {
	const query = `
		UPDATE pickup_requests
		SET status = $1,
			rejected_at = $2
		WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, types.StatusRejected, time.Now(), id, types.StatusPending)
	if err != nil {
		return types.PickupRequest{}, err
	}
	if err := r.checkTransition(ctx, result, id); err != nil {
		return types.PickupRequest{}, err
	}
	return r.Get(ctx, id)
}

// Complete moves an accepted request to completed and credits the owning
// consumer with the reward, atomically. The status update is conditioned
// on status = accepted (and on the accepting collector when collectorID is
// non-zero), so a repeated call fails with ErrConflict and never awards
// twice. Returns the id of the credited consumer.
func (r *RequestRepository) Complete(ctx context.Context, id, collectorID, points int) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	query := `
		UPDATE pickup_requests
		SET status = $1,
			completed_at = $2
		WHERE id = $3 AND status = $4`
	args := []any{types.StatusCompleted, time.Now(), id, types.StatusAccepted}
	if collectorID != 0 {
		query += ` AND collector_id = $5`
		args = append(args, collectorID)
	}
	query += ` RETURNING user_id`

	var ownerID int
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, r.transitionError(ctx, id)
		}
		return 0, err
	}

	const pointsQuery = `UPDATE users SET points = points + $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, pointsQuery, points, ownerID); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return ownerID, nil
}

func (r *RequestRepository) list(ctx context.Context, query string, args ...any) ([]types.PickupRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []types.PickupRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// checkTransition maps a zero-row conditional update to ErrNotFound or
// ErrConflict depending on whether the request exists at all.
func (r *RequestRepository) checkTransition(ctx context.Context, result sql.Result, id int) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return r.transitionError(ctx, id)
	}
	return nil
}

func (r *RequestRepository) transitionError(ctx context.Context, id int) error {
	const query = `SELECT 1 FROM pickup_requests WHERE id = $1`
	var one int
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (types.PickupRequest, error) {
	var (
		req            types.PickupRequest
		collectorID    sql.NullInt64
		acceptedAt     sql.NullTime
		rejectedAt     sql.NullTime
		completedAt    sql.NullTime
		requesterName  string
		requesterPhone string
		collectorName  sql.NullString
		collectorPhone sql.NullString
	)
	if err := row.Scan(
		&req.ID,
		&req.UserID,
		&collectorID,
		&req.Name,
		&req.Phone,
		&req.Address,
		&req.Category,
		&req.Description,
		&req.Status,
		&req.CreatedAt,
		&acceptedAt,
		&rejectedAt,
		&completedAt,
		&requesterName,
		&requesterPhone,
		&collectorName,
		&collectorPhone,
	); err != nil {
		return types.PickupRequest{}, err
	}

	if collectorID.Valid {
		id := int(collectorID.Int64)
		req.CollectorID = &id
	}
	if acceptedAt.Valid {
		req.AcceptedAt = &acceptedAt.Time
	}
	if rejectedAt.Valid {
		req.RejectedAt = &rejectedAt.Time
	}
	if completedAt.Valid {
		req.CompletedAt = &completedAt.Time
	}
	req.Requester = &types.PartySummary{Name: requesterName, Phone: requesterPhone}
	if collectorName.Valid {
		req.Collector = &types.PartySummary{Name: collectorName.String, Phone: collectorPhone.String}
	}
	return req, nil
}
