package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/ecocycle/apiserver/internal/storage"
	"github.com/ecocycle/apiserver/internal/store"
	"github.com/ecocycle/apiserver/types"
)

// ListingRepository defines persistence operations for waste listings.
type ListingRepository interface {
	Create(ctx context.Context, listing types.WasteListing) (types.WasteListing, error)
	Get(ctx context.Context, id int) (types.WasteListing, error)
	List(ctx context.Context, filter store.ListingFilter) ([]types.WasteListing, error)
	UpdateStatus(ctx context.Context, id int, from, to types.ListingStatus) (types.WasteListing, error)
	Delete(ctx context.Context, id int) error
}

// PhotoFile is an uploaded listing photo prior to storage.
type PhotoFile struct {
	Filename string
	Data     []byte
}

// ErrNotOwner is returned when an actor mutates a listing they do not own.
var ErrNotOwner = errors.New("not the listing owner")

// ErrBadTransition is returned for listing status moves that go backwards
// or to an unknown status.
var ErrBadTransition = errors.New("invalid status transition")

// ListingService encapsulates waste-listing use-cases, including photo
// upload to object storage.
type ListingService struct {
	repo   ListingRepository
	photos *storage.Storage
}

func NewListingService(repo ListingRepository, photos *storage.Storage) *ListingService {
	return &ListingService{repo: repo, photos: photos}
}

// Create stores the photos in object storage and persists the listing with
// their object keys. Photos are keyed by content hash, so re-uploading the
// same image is harmless.
func (s *ListingService) Create(ctx context.Context, listing types.WasteListing, photos []PhotoFile) (types.WasteListing, error) {
	keys := make([]string, 0, len(photos))
	for _, photo := range photos {
		key, err := s.putPhoto(ctx, photo)
		if err != nil {
			return types.WasteListing{}, err
		}
		keys = append(keys, key)
	}
	listing.Photos = keys
	listing.Status = types.ListingAvailable

	return s.repo.Create(ctx, listing)
}

func (s *ListingService) Get(ctx context.Context, id int) (types.WasteListing, error) {
	return s.repo.Get(ctx, id)
}

func (s *ListingService) List(ctx context.Context, filter store.ListingFilter) ([]types.WasteListing, error) {
	return s.repo.List(ctx, filter)
}

// UpdateStatus moves the listing forward in its lifecycle. Only the owner
// may do this.
func (s *ListingService) UpdateStatus(ctx context.Context, id, actorID int, next types.ListingStatus) (types.WasteListing, error) {
	listing, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.WasteListing{}, err
	}
	if listing.UserID != actorID {
		return types.WasteListing{}, ErrNotOwner
	}
	if !listing.Status.CanTransitionTo(next) {
		return types.WasteListing{}, ErrBadTransition
	}
	return s.repo.UpdateStatus(ctx, id, listing.Status, next)
}

// Delete removes the listing and its stored photos. Photo deletion is
// best-effort: the listing row is the source of truth and an orphaned
// object is preferable to a listing that cannot be deleted.
func (s *ListingService) Delete(ctx context.Context, id, actorID int) error {
	listing, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if listing.UserID != actorID {
		return ErrNotOwner
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if s.photos != nil {
		for _, key := range listing.Photos {
			_ = s.photos.Delete(ctx, key)
		}
	}
	return nil
}

func (s *ListingService) putPhoto(ctx context.Context, photo PhotoFile) (string, error) {
	if len(photo.Data) == 0 {
		return "", errors.New("empty photo upload")
	}
	if s.photos == nil {
		return "", errors.New("photo storage is not configured")
	}

	contentType := http.DetectContentType(photo.Data)
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("unsupported photo type: %s", contentType)
	}

	hash := sha256.Sum256(photo.Data)
	key := "photos/" + hex.EncodeToString(hash[:]) + strings.ToLower(path.Ext(photo.Filename))

	err := s.photos.Put(ctx, key, bytes.NewReader(photo.Data), int64(len(photo.Data)), contentType)
	if err != nil {
		return "", err
	}
	return key, nil
}
