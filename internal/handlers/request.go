package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ecocycle/apiserver/internal/services"
	"github.com/ecocycle/apiserver/internal/store"
	"github.com/ecocycle/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// RequestHandler provides HTTP handlers for pickup requests.
type RequestHandler struct {
	requestService *services.RequestService
}

// NewRequestHandler constructs a handler with the provided service.
func NewRequestHandler(requestService *services.RequestService) *RequestHandler {
	return &RequestHandler{requestService: requestService}
}

// RequestRouter registers pickup-request routes on the given router. All
// routes sit behind the auth middleware; role requirements are declared
// per operation.
func RequestRouter(r chi.Router, requestService *services.RequestService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewRequestHandler(requestService)

	r.Use(authMiddleware)
	r.With(requireRole(types.RoleConsumer)).Post("/", handler.CreateRequest)
	r.Get("/", handler.ListRequests)
	r.Route("/{requestID}", func(r chi.Router) {
		r.Get("/", handler.GetRequest)
		r.With(requireRole(types.RoleCollector)).Put("/accept", handler.AcceptRequest)
		r.With(requireRole(types.RoleCollector)).Put("/reject", handler.RejectRequest)
		r.With(requireRole(types.RoleCollector)).Put("/complete", handler.CompleteRequest)
	})
}

func (h *RequestHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Address = strings.TrimSpace(req.Address)
	if req.Name == "" || req.Phone == "" || req.Address == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}
	if !req.Category.ValidForPickup() {
		writeError(w, http.StatusBadRequest, "invalid category")
		return
	}

	created, err := h.requestService.Create(r.Context(), types.PickupRequest{
		UserID:      identity.UserID,
		Name:        req.Name,
		Phone:       req.Phone,
		Address:     req.Address,
		Category:    req.Category,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create request")
		return
	}

	writeJSON(w, http.StatusCreated, RequestResponse{
		Message: "Pickup request submitted successfully",
		Request: created,
	})
}

func (h *RequestHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	requests, err := h.requestService.ListFor(r.Context(), identity.UserID, identity.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list requests")
		return
	}

	writeJSON(w, http.StatusOK, RequestListResponse{Requests: requests})
}

func (h *RequestHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseRequestID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	request, err := h.requestService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "request not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch request")
		return
	}

	writeJSON(w, http.StatusOK, RequestResponse{Request: request})
}

func (h *RequestHandler) AcceptRequest(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseRequestID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	request, err := h.requestService.Accept(r.Context(), id, identity.UserID)
	if err != nil {
		writeTransitionError(w, err, "failed to accept request")
		return
	}

	writeJSON(w, http.StatusOK, RequestResponse{
		Message: "Request accepted successfully",
		Request: request,
	})
}

func (h *RequestHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	id, err := parseRequestID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	request, err := h.requestService.Reject(r.Context(), id)
	if err != nil {
		writeTransitionError(w, err, "failed to reject request")
		return
	}

	writeJSON(w, http.StatusOK, RequestResponse{
		Message: "Request rejected",
		Request: request,
	})
}

func (h *RequestHandler) CompleteRequest(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseRequestID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := h.requestService.Complete(r.Context(), id, identity.UserID); err != nil {
		writeTransitionError(w, err, "failed to complete request")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Request completed successfully. User earned %d points!", services.CompletionReward),
	})
}

// CreateRequestPayload is the JSON body for creating a pickup request.
type CreateRequestPayload struct {
	Name        string         `json:"name"`
	Phone       string         `json:"phone"`
	Address     string         `json:"address"`
	Category    types.Category `json:"category"`
	Description string         `json:"description"`
}

// RequestResponse wraps a single pickup request.
type RequestResponse struct {
	Message string              `json:"message,omitempty"`
	Request types.PickupRequest `json:"request"`
}

// RequestListResponse wraps a role-scoped request listing.
type RequestListResponse struct {
	Requests []types.PickupRequest `json:"requests"`
}

// MessageResponse carries a bare human-readable message.
type MessageResponse struct {
	Message string `json:"message"`
}

func parseRequestID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "requestID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid request id")
	}
	return id, nil
}

// writeTransitionError maps lifecycle transition failures: missing rows to
// 404, guard misses (wrong current status, or wrong collector under strict
// completion) to 409.
func writeTransitionError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "request not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "request is not in a state that allows this transition")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
