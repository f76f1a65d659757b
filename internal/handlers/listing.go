package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/ecocycle/apiserver/internal/services"
	"github.com/ecocycle/apiserver/internal/store"
	"github.com/ecocycle/apiserver/types"
	"github.com/go-chi/chi/v5"
)

const (
	maxMultipartMemory = 32 << 20
	maxPhotoBytes      = 8 << 20
	maxPhotosPerUpload = 6

	formFieldTitle    = "title"
	formFieldDesc     = "description"
	formFieldCategory = "category"
	formFieldQuantity = "quantity"
	formFieldUnit     = "unit"
	formFieldLocation = "location"
	formFieldPrice    = "price"
	formFieldTags     = "tags"
	formFieldPhotos   = "photos"
)

// ListingHandler provides HTTP handlers for waste listings.
type ListingHandler struct {
	listingService *services.ListingService
}

// NewListingHandler constructs a handler with the provided service.
func NewListingHandler(listingService *services.ListingService) *ListingHandler {
	return &ListingHandler{listingService: listingService}
}

// ListingRouter registers listing routes on the given router.
func ListingRouter(r chi.Router, listingService *services.ListingService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewListingHandler(listingService)

	r.Use(authMiddleware)
	r.With(requireRole(types.RoleConsumer)).Post("/", handler.CreateListing)
	r.Get("/", handler.ListListings)
	r.Route("/{listingID}", func(r chi.Router) {
		r.Get("/", handler.GetListing)
		r.Put("/status", handler.UpdateListingStatus)
		r.Delete("/", handler.DeleteListing)
	})
}

func (h *ListingHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	req, photos, err := parseListingForm(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing := types.WasteListing{
		UserID:      identity.UserID,
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		Location:    req.Location,
		Price:       req.Price,
		Tags:        req.Tags,
	}

	created, err := h.listingService.Create(r.Context(), listing, photos)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to create listing")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *ListingHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	filter, err := parseListingFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listings, err := h.listingService.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}

	writeJSON(w, http.StatusOK, ListingListResponse{Listings: listings})
}

func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	listing, err := h.listingService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "listing not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch listing")
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

func (h *ListingHandler) UpdateListingStatus(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateListingStatusPayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	listing, err := h.listingService.UpdateStatus(r.Context(), id, identity.UserID, req.Status)
	if err != nil {
		writeListingError(w, err, "failed to update listing")
		return
	}

	writeJSON(w, http.StatusOK, listing)
}

func (h *ListingHandler) DeleteListing(w http.ResponseWriter, r *http.Request) {
	identity, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseListingID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.listingService.Delete(r.Context(), id, identity.UserID); err != nil {
		writeListingError(w, err, "failed to delete listing")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListingUpsertRequest represents the parsed multipart form payload.
type ListingUpsertRequest struct {
	Title       string
	Description string
	Category    types.Category
	Quantity    float64
	Unit        string
	Location    string
	Price       *float64
	Tags        []string
}

// UpdateListingStatusPayload is the JSON body for a status move.
type UpdateListingStatusPayload struct {
	Status types.ListingStatus `json:"status"`
}

// ListingListResponse wraps a listing collection.
type ListingListResponse struct {
	Listings []types.WasteListing `json:"listings"`
}

func parseListingID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "listingID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid listing id")
	}
	return id, nil
}

func parseListingFilter(r *http.Request) (store.ListingFilter, error) {
	var filter store.ListingFilter
	if raw := strings.TrimSpace(r.URL.Query().Get("category")); raw != "" {
		category := types.Category(raw)
		if !category.Valid() {
			return store.ListingFilter{}, errors.New("invalid category")
		}
		filter.Category = category
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := types.ListingStatus(raw)
		if !status.Valid() {
			return store.ListingFilter{}, errors.New("invalid status")
		}
		filter.Status = status
	}
	return filter, nil
}

func parseListingForm(r *http.Request) (ListingUpsertRequest, []services.PhotoFile, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return ListingUpsertRequest{}, nil, errors.New("invalid multipart form")
	}

	title := strings.TrimSpace(r.FormValue(formFieldTitle))
	if title == "" {
		return ListingUpsertRequest{}, nil, errors.New("title is required")
	}

	location := strings.TrimSpace(r.FormValue(formFieldLocation))
	if location == "" {
		return ListingUpsertRequest{}, nil, errors.New("location is required")
	}

	category := types.Category(strings.TrimSpace(r.FormValue(formFieldCategory)))
	if !category.Valid() {
		return ListingUpsertRequest{}, nil, errors.New("invalid category")
	}

	quantity, err := parseOptionalFloat(r.FormValue(formFieldQuantity))
	if err != nil || quantity < 0 {
		return ListingUpsertRequest{}, nil, errors.New("invalid quantity")
	}

	var price *float64
	if raw := strings.TrimSpace(r.FormValue(formFieldPrice)); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil || value < 0 {
			return ListingUpsertRequest{}, nil, errors.New("invalid price")
		}
		price = &value
	}

	photos, err := parsePhotoFiles(r.MultipartForm)
	if err != nil {
		return ListingUpsertRequest{}, nil, err
	}

	return ListingUpsertRequest{
		Title:       title,
		Description: strings.TrimSpace(r.FormValue(formFieldDesc)),
		Category:    category,
		Quantity:    quantity,
		Unit:        strings.TrimSpace(r.FormValue(formFieldUnit)),
		Location:    location,
		Price:       price,
		Tags:        parseTags(r.FormValue(formFieldTags)),
	}, photos, nil
}

func parseOptionalFloat(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.ParseFloat(value, 64)
}

func parseTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		tag := strings.TrimSpace(part)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func parsePhotoFiles(form *multipart.Form) ([]services.PhotoFile, error) {
	if form == nil {
		return nil, nil
	}

	files := form.File[formFieldPhotos]
	if len(files) > maxPhotosPerUpload {
		return nil, fmt.Errorf("at most %d photos are allowed", maxPhotosPerUpload)
	}

	photos := make([]services.PhotoFile, 0, len(files))
	for _, fileHeader := range files {
		file, err := fileHeader.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to read photo: %w", err)
		}

		data, err := readFileLimited(file, maxPhotoBytes)
		_ = file.Close()
		if err != nil {
			return nil, err
		}

		photos = append(photos, services.PhotoFile{
			Filename: fileHeader.Filename,
			Data:     data,
		})
	}
	return photos, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}

func writeListingError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "listing not found")
	case errors.Is(err, services.ErrNotOwner):
		writeError(w, http.StatusForbidden, "not the listing owner")
	case errors.Is(err, services.ErrBadTransition):
		writeError(w, http.StatusConflict, "listing cannot move to that status")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "listing changed concurrently")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}
