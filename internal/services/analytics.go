package services

import (
	"context"

	"github.com/ecocycle/apiserver/types"
)

// AnalyticsRepository defines the aggregate reads used by the admin
// dashboard.
type AnalyticsRepository interface {
	TotalRequests(ctx context.Context) (int, error)
	CompletedRequests(ctx context.Context) (int, error)
	ActiveCollectors(ctx context.Context) (int, error)
	CategoryBreakdown(ctx context.Context) (map[types.Category]int, error)
}

// Analytics is the aggregate snapshot returned to admins.
type Analytics struct {
	TotalRequests     int                    `json:"totalRequests"`
	CompletedRequests int                    `json:"completedRequests"`
	ActiveCollectors  int                    `json:"activeCollectors"`
	CategoryBreakdown map[types.Category]int `json:"categoryBreakdown"`
}

// AnalyticsService encapsulates admin analytics aggregation.
type AnalyticsService struct {
	repo AnalyticsRepository
}

func NewAnalyticsService(repo AnalyticsRepository) *AnalyticsService {
	return &AnalyticsService{repo: repo}
}

// Snapshot computes all aggregates over the full tables at call time.
func (s *AnalyticsService) Snapshot(ctx context.Context) (Analytics, error) {
	total, err := s.repo.TotalRequests(ctx)
	if err != nil {
		return Analytics{}, err
	}
	completed, err := s.repo.CompletedRequests(ctx)
	if err != nil {
		return Analytics{}, err
	}
	collectors, err := s.repo.ActiveCollectors(ctx)
	if err != nil {
		return Analytics{}, err
	}
	breakdown, err := s.repo.CategoryBreakdown(ctx)
	if err != nil {
		return Analytics{}, err
	}

	return Analytics{
		TotalRequests:     total,
		CompletedRequests: completed,
		ActiveCollectors:  collectors,
		CategoryBreakdown: breakdown,
	}, nil
}
