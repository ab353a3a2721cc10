package storage

import (
	"context"
	"errors"

	"gt_housing/models"
)

// ErrConflict is returned by Insert when the datastore rejects the row as
// a duplicate name. Callers treat this as "found existing", not a failure.
var ErrConflict = errors.New("storage: duplicate name")

// ErrUnknownColumn is returned by Insert when the datastore rejects a
// column the schema does not carry. Callers may retry with a reduced
// column set.
var ErrUnknownColumn = errors.New("storage: unknown column")

func isUnknownColumn(err error) bool {
	return errors.Is(err, ErrUnknownColumn)
}

// ListingStore is the shared apartment datastore. Uniqueness is enforced
// on name by the store itself; FindByName compares case-insensitively.
type ListingStore interface {
	FetchAll(ctx context.Context) ([]models.ListingRecord, error)
	FindByName(ctx context.Context, name string) (*models.ListingRecord, error)
	Insert(ctx context.Context, rec *models.ListingRecord) (*models.ListingRecord, error)
}
