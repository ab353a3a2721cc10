package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"gt_housing/models"
)

// PostgresStore talks to the datastore over a direct connection, the way
// the bulk upload scripts do. Same semantics as the PostgREST path.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

const listingColumns = `id, name, street_address, city, state, zip_code, formatted_address,
	phone, url, latitude, longitude, price_range, bed_range,
	user_generated, google_verified, google_place_id, created_at`

func (s *PostgresStore) FetchAll(ctx context.Context) ([]models.ListingRecord, error) {
	query := `SELECT ` + listingColumns + ` FROM apartments ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}
	defer rows.Close()

	var records []models.ListingRecord
	for rows.Next() {
		rec, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (s *PostgresStore) FindByName(ctx context.Context, name string) (*models.ListingRecord, error) {
	query := `SELECT ` + listingColumns + ` FROM apartments WHERE LOWER(name) = LOWER($1) LIMIT 1`

	rows, err := s.pool.Query(ctx, query, name)
	if err != nil {
		return nil, fmt.Errorf("find listing: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanListing(rows)
}

func (s *PostgresStore) Insert(ctx context.Context, rec *models.ListingRecord) (*models.ListingRecord, error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	created, err := s.insertFull(ctx, rec)
	if err == nil {
		return created, nil
	}
	if !isUnknownColumn(err) {
		return nil, err
	}

	created, retryErr := s.insertReduced(ctx, rec)
	if retryErr != nil {
		return nil, fmt.Errorf("%w (after reduced-column retry: %v)", err, retryErr)
	}
	return created, nil
}

func (s *PostgresStore) insertFull(ctx context.Context, rec *models.ListingRecord) (*models.ListingRecord, error) {
	query := `
		INSERT INTO apartments (
			id, name, street_address, city, state, zip_code, formatted_address,
			phone, url, latitude, longitude, price_range, bed_range,
			user_generated, google_verified, google_place_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		RETURNING ` + listingColumns

	rows, err := s.pool.Query(ctx, query,
		rec.ID, rec.Name, rec.StreetAddress, rec.City, rec.State, rec.ZipCode,
		rec.FormattedAddress, rec.Phone, rec.URL, rec.Latitude, rec.Longitude,
		rec.PriceRange, rec.BedRange, rec.UserGenerated, rec.GoogleVerified,
		rec.GooglePlaceID,
	)
	if err != nil {
		return nil, classifyPgError(err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, classifyPgError(err)
		}
		return nil, fmt.Errorf("insert returned no row")
	}
	return scanListing(rows)
}

func (s *PostgresStore) insertReduced(ctx context.Context, rec *models.ListingRecord) (*models.ListingRecord, error) {
	query := `
		INSERT INTO apartments (
			id, name, street_address, city, state, zip_code, formatted_address,
			phone, url, price_range, bed_range, user_generated
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		RETURNING id, name, street_address, city, state, zip_code, formatted_address,
			phone, url, price_range, bed_range, user_generated, created_at`

	var r models.ListingRecord
	err := s.pool.QueryRow(ctx, query,
		rec.ID, rec.Name, rec.StreetAddress, rec.City, rec.State, rec.ZipCode,
		rec.FormattedAddress, rec.Phone, rec.URL, rec.PriceRange, rec.BedRange,
		rec.UserGenerated,
	).Scan(
		&r.ID, &r.Name, &r.StreetAddress, &r.City, &r.State, &r.ZipCode,
		&r.FormattedAddress, &r.Phone, &r.URL, &r.PriceRange, &r.BedRange,
		&r.UserGenerated, &r.CreatedAt,
	)
	if err != nil {
		return nil, classifyPgError(err)
	}
	return &r, nil
}

func scanListing(rows pgx.Rows) (*models.ListingRecord, error) {
	var r models.ListingRecord
	err := rows.Scan(
		&r.ID, &r.Name, &r.StreetAddress, &r.City, &r.State, &r.ZipCode,
		&r.FormattedAddress, &r.Phone, &r.URL, &r.Latitude, &r.Longitude,
		&r.PriceRange, &r.BedRange, &r.UserGenerated, &r.GoogleVerified,
		&r.GooglePlaceID, &r.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	return &r, nil
}

// classifyPgError maps unique_violation and undefined_column onto the
// store's error classes.
func classifyPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		case "42703":
			return fmt.Errorf("%w: %s", ErrUnknownColumn, pgErr.Message)
		}
	}
	return err
}
