package handlers_test

import (
	"context"
	"sync"
	"time"

	"github.com/ecocycle/apiserver/internal/store"
	"github.com/ecocycle/apiserver/types"
)

// fakeUserRepo is an in-memory services.UserRepository.
type fakeUserRepo struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int]types.User)}
}

func (f *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (f *fakeUserRepo) GetByPhone(_ context.Context, phone string) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Phone == phone {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (f *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Phone == user.Phone {
			return types.User{}, store.ErrDuplicatePhone
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now()
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeUserRepo) List(_ context.Context) ([]types.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	users := make([]types.User, 0, len(f.users))
	for _, user := range f.users {
		users = append(users, user)
	}
	return users, nil
}

func (f *fakeUserRepo) addPoints(id, points int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[id]
	user.Points += points
	f.users[id] = user
}

func (f *fakeUserRepo) points(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].Points
}

// fakeRequestRepo is an in-memory services.RequestRepository with the same
// conditional-transition semantics as the postgres one.
type fakeRequestRepo struct {
	mu       sync.Mutex
	nextID   int
	requests map[int]types.PickupRequest
	users    *fakeUserRepo
}

func newFakeRequestRepo(users *fakeUserRepo) *fakeRequestRepo {
	return &fakeRequestRepo{
		requests: make(map[int]types.PickupRequest),
		users:    users,
	}
}

func (f *fakeRequestRepo) Create(_ context.Context, req types.PickupRequest) (types.PickupRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	req.ID = f.nextID
	req.Status = types.StatusPending
	req.CreatedAt = time.Now()
	f.requests[req.ID] = req
	return f.joined(req), nil
}

func (f *fakeRequestRepo) Get(_ context.Context, id int) (types.PickupRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return types.PickupRequest{}, store.ErrNotFound
	}
	return f.joined(req), nil
}

func (f *fakeRequestRepo) List(_ context.Context) ([]types.PickupRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	requests := make([]types.PickupRequest, 0, len(f.requests))
	for _, req := range f.requests {
		requests = append(requests, f.joined(req))
	}
	return requests, nil
}

func (f *fakeRequestRepo) ListByUser(_ context.Context, userID int) ([]types.PickupRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var requests []types.PickupRequest
	for _, req := range f.requests {
		if req.UserID == userID {
			requests = append(requests, f.joined(req))
		}
	}
	return requests, nil
}

func (f *fakeRequestRepo) Accept(_ context.Context, id, collectorID int) (types.PickupRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return types.PickupRequest{}, store.ErrNotFound
	}
	if req.Status != types.StatusPending {
		return types.PickupRequest{}, store.ErrConflict
	}
	now := time.Now()
	req.Status = types.StatusAccepted
	req.CollectorID = &collectorID
	req.AcceptedAt = &now
	f.requests[id] = req
	return f.joined(req), nil
}

func (f *fakeRequestRepo) Reject(_ context.Context, id int) (types.PickupRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requests[id]
	if !ok {
		return types.PickupRequest{}, store.ErrNotFound
	}
	if req.Status != types.StatusPending {
		return types.PickupRequest{}, store.ErrConflict
	}
	now := time.Now()
	req.Status = types.StatusRejected
	req.RejectedAt = &now
	f.requests[id] = req
	return f.joined(req), nil
}

func (f *fakeRequestRepo) Complete(_ context.Context, id, collectorID, points int) (int, error) {
	f.mu.Lock()
	req, ok := f.requests[id]
	if !ok {
		f.mu.Unlock()
		return 0, store.ErrNotFound
	}
	if req.Status != types.StatusAccepted {
		f.mu.Unlock()
		return 0, store.ErrConflict
	}
	if collectorID != 0 && (req.CollectorID == nil || *req.CollectorID != collectorID) {
		f.mu.Unlock()
		return 0, store.ErrConflict
	}
	now := time.Now()
	req.Status = types.StatusCompleted
	req.CompletedAt = &now
	f.requests[id] = req
	f.mu.Unlock()

	f.users.addPoints(req.UserID, points)
	return req.UserID, nil
}

func (f *fakeRequestRepo) joined(req types.PickupRequest) types.PickupRequest {
	if owner, ok := f.users.users[req.UserID]; ok {
		req.Requester = &types.PartySummary{Name: owner.Name, Phone: owner.Phone}
	}
	if req.CollectorID != nil {
		if collector, ok := f.users.users[*req.CollectorID]; ok {
			req.Collector = &types.PartySummary{Name: collector.Name, Phone: collector.Phone}
		}
	}
	return req
}
