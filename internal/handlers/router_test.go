package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ecocycle/apiserver/internal/handlers"
	"github.com/ecocycle/apiserver/internal/services"
	"github.com/ecocycle/apiserver/internal/storage"
	"github.com/ecocycle/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

type testEnv struct {
	router     *chi.Mux
	users      *fakeUserRepo
	requests   *fakeRequestRepo
	photoStore *memoryObjectStorage
}

func newTestEnv(t *testing.T, strictCompletion bool) *testEnv {
	t.Helper()

	users := newFakeUserRepo()
	requests := newFakeRequestRepo(users)
	photoStore := newMemoryObjectStorage()

	userService := services.NewUserService(users)
	requestService := services.NewRequestService(requests, strictCompletion)
	analyticsService := services.NewAnalyticsService(&fakeAnalyticsRepo{users: users, requests: requests})
	listingService := services.NewListingService(newFakeListingRepo(), storage.NewStorage(photoStore))
	authMiddleware := handlers.RequireAuth(testJWTSecret)

	router := chi.NewRouter()
	router.Route("/api/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, testJWTSecret)
	})
	router.Route("/api/requests", func(r chi.Router) {
		handlers.RequestRouter(r, requestService, authMiddleware)
	})
	router.Route("/api/admin", func(r chi.Router) {
		handlers.AdminRouter(r, analyticsService, userService, authMiddleware)
	})
	router.Route("/api/listings", func(r chi.Router) {
		handlers.ListingRouter(r, listingService, authMiddleware)
	})

	return &testEnv{router: router, users: users, requests: requests, photoStore: photoStore}
}

// do sends a JSON request through the router and decodes the response body
// into out when it is non-nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body, out any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	e.router.ServeHTTP(recorder, req)

	if out != nil && recorder.Code < http.StatusBadRequest {
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), out))
	}
	return recorder
}

// signup registers an account with the given role and returns its token
// and user record.
func (e *testEnv) signup(t *testing.T, name, phone string, role types.Role) (string, types.User) {
	t.Helper()

	var resp handlers.AuthResponse
	recorder := e.do(t, http.MethodPost, "/api/auth/signup", "", handlers.SignupRequest{
		Name:     name,
		Phone:    phone,
		Password: "secret123",
		Role:     role,
	}, &resp)
	require.Equal(t, http.StatusCreated, recorder.Code)
	require.NotEmpty(t, resp.Token)
	return resp.Token, resp.User
}

func errorMessage(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var resp handlers.ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return resp.Error
}
