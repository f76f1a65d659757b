package store

import (
	"context"
	"database/sql"

	"github.com/ecocycle/apiserver/types"
)

// AnalyticsRepository computes read-only aggregates over the request and
// user tables. Every count is taken over the full table at call time; no
// filtering or windowing is supported.
type AnalyticsRepository struct {
	db *sql.DB
}

func NewAnalyticsRepository(db *sql.DB) *AnalyticsRepository {
	return &AnalyticsRepository{db: db}
}

func (r *AnalyticsRepository) TotalRequests(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(1) FROM pickup_requests`
	return r.count(ctx, query)
}

func (r *AnalyticsRepository) CompletedRequests(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(1) FROM pickup_requests WHERE status = $1`
	return r.count(ctx, query, types.StatusCompleted)
}

func (r *AnalyticsRepository) ActiveCollectors(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(1) FROM users WHERE role = $1`
	return r.count(ctx, query, types.RoleCollector)
}

// CategoryBreakdown maps each category to its count of completed requests.
// Categories with no completions are absent from the map.
func (r *AnalyticsRepository) CategoryBreakdown(ctx context.Context) (map[types.Category]int, error) {
	const query = `
		SELECT category, COUNT(1)
		FROM pickup_requests
		WHERE status = $1
		GROUP BY category`
	rows, err := r.db.QueryContext(ctx, query, types.StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	breakdown := make(map[types.Category]int)
	for rows.Next() {
		var category types.Category
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return nil, err
		}
		breakdown[category] = count
	}
	return breakdown, rows.Err()
}

func (r *AnalyticsRepository) count(ctx context.Context, query string, args ...any) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
