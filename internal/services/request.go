package services

import (
	"context"

	"github.com/ecocycle/apiserver/types"
)

// CompletionReward is the fixed number of points credited to the owning
// consumer when a pickup request is completed.
const CompletionReward = 10

// RequestRepository defines persistence operations for pickup requests.
// Accept, Reject, and Complete are conditional on the current status and
// return store.ErrConflict when the transition guard fails.
type RequestRepository interface {
	Create(ctx context.Context, req types.PickupRequest) (types.PickupRequest, error)
	Get(ctx context.Context, id int) (types.PickupRequest, error)
	List(ctx context.Context) ([]types.PickupRequest, error)
	ListByUser(ctx context.Context, userID int) ([]types.PickupRequest, error)
	Accept(ctx context.Context, id, collectorID int) (types.PickupRequest, error)
	Reject(ctx context.Context, id int) (types.PickupRequest, error)
	Complete(ctx context.Context, id, collectorID, points int) (int, error)
}

// RequestService encapsulates the pickup-request lifecycle.
type RequestService struct {
	repo RequestRepository

	// strictCompletion restricts completion to the collector who accepted
	// the request. When false any collector may finish an accepted job.
	strictCompletion bool
}

func NewRequestService(repo RequestRepository, strictCompletion bool) *RequestService {
	return &RequestService{repo: repo, strictCompletion: strictCompletion}
}

// Create opens a new pending request owned by the given consumer.
func (s *RequestService) Create(ctx context.Context, req types.PickupRequest) (types.PickupRequest, error) {
	return s.repo.Create(ctx, req)
}

func (s *RequestService) Get(ctx context.Context, id int) (types.PickupRequest, error) {
	return s.repo.Get(ctx, id)
}

// ListFor returns the requests visible to the given actor: consumers see
// only their own, collectors and admins see all.
func (s *RequestService) ListFor(ctx context.Context, userID int, role types.Role) ([]types.PickupRequest, error) {
	if role == types.RoleConsumer {
		return s.repo.ListByUser(ctx, userID)
	}
	return s.repo.List(ctx)
}

// Accept claims a pending request for the given collector.
func (s *RequestService) Accept(ctx context.Context, id, collectorID int) (types.PickupRequest, error) {
	return s.repo.Accept(ctx, id, collectorID)
}

// Reject turns down a pending request.
func (s *RequestService) Reject(ctx context.Context, id int) (types.PickupRequest, error) {
	return s.repo.Reject(ctx, id)
}

// Complete finishes an accepted request and credits the owning consumer
// with CompletionReward points, atomically. A request that is not in the
// accepted state (including one already completed) fails the transition
// and is never awarded twice. Returns the credited consumer's id.
func (s *RequestService) Complete(ctx context.Context, id, collectorID int) (int, error) {
	acceptor := 0
	if s.strictCompletion {
		acceptor = collectorID
	}
	return s.repo.Complete(ctx, id, acceptor, CompletionReward)
}
