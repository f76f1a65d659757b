package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ecocycle/apiserver/types"
)

// ListingRepository handles persistence for waste listings. Tags and photo
// keys are stored as JSON columns.
type ListingRepository struct {
	db *sql.DB
}

func NewListingRepository(db *sql.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// ListingFilter narrows List results. Zero values match everything.
type ListingFilter struct {
	Category types.Category
	Status   types.ListingStatus
}

const listingColumns = `
	id, user_id, title, description, category, quantity, unit, location,
	price, tags, photos, status, created_at, updated_at`

func (r *ListingRepository) Create(ctx context.Context, listing types.WasteListing) (types.WasteListing, error) {
	now := time.Now()
	listing.CreatedAt = now
	listing.UpdatedAt = now
	if listing.Status == "" {
		listing.Status = types.ListingAvailable
	}

	tagsJSON, err := json.Marshal(listing.Tags)
	if err != nil {
		return types.WasteListing{}, err
	}
	photosJSON, err := json.Marshal(listing.Photos)
	if err != nil {
		return types.WasteListing{}, err
	}

	const query = `
		INSERT INTO waste_listings (user_id, title, description, category, quantity, unit, location, price, tags, photos, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		listing.UserID,
		listing.Title,
		listing.Description,
		listing.Category,
		listing.Quantity,
		listing.Unit,
		listing.Location,
		listing.Price,
		tagsJSON,
		photosJSON,
		listing.Status,
		listing.CreatedAt,
		listing.UpdatedAt,
	).Scan(&listing.ID); err != nil {
		return types.WasteListing{}, err
	}
	return listing, nil
}

func (r *ListingRepository) Get(ctx context.Context, id int) (types.WasteListing, error) {
	query := `SELECT` + listingColumns + ` FROM waste_listings WHERE id = $1`
	listing, err := scanListing(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.WasteListing{}, ErrNotFound
		}
		return types.WasteListing{}, err
	}
	return listing, nil
}

func (r *ListingRepository) List(ctx context.Context, filter ListingFilter) ([]types.WasteListing, error) {
	query := `SELECT` + listingColumns + ` FROM waste_listings`
	var (
		conds []string
		args  []any
	)
	if filter.Category != "" {
		args = append(args, filter.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var listings []types.WasteListing
	for rows.Next() {
		listing, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, listing)
	}
	return listings, rows.Err()
}

// UpdateStatus moves a listing to the given status, conditioned on the
// expected current status so concurrent updates cannot skip states.
func (r *ListingRepository) UpdateStatus(ctx context.Context, id int, from, to types.ListingStatus) (types.WasteListing, error) {
	const query = `
		UPDATE waste_listings
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`
	result, err := r.db.ExecContext(ctx, query, to, time.Now(), id, from)
	if err != nil {
		return types.WasteListing{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.WasteListing{}, err
	}
	if affected == 0 {
		if _, getErr := r.Get(ctx, id); errors.Is(getErr, ErrNotFound) {
			return types.WasteListing{}, ErrNotFound
		}
		return types.WasteListing{}, ErrConflict
	}
	return r.Get(ctx, id)
}

func (r *ListingRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM waste_listings WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func scanListing(row rowScanner) (types.WasteListing, error) {
	var (
		listing    types.WasteListing
		price      sql.NullFloat64
		tagsJSON   []byte
		photosJSON []byte
	)
	if err := row.Scan(
		&listing.ID,
		&listing.UserID,
		&listing.Title,
		&listing.Description,
		&listing.Category,
		&listing.Quantity,
		&listing.Unit,
		&listing.Location,
		&price,
		&tagsJSON,
		&photosJSON,
		&listing.Status,
		&listing.CreatedAt,
		&listing.UpdatedAt,
	); err != nil {
		return types.WasteListing{}, err
	}

	if price.Valid {
		listing.Price = &price.Float64
	}
	_ = json.Unmarshal(tagsJSON, &listing.Tags)
	_ = json.Unmarshal(photosJSON, &listing.Photos)
	return listing, nil
}
