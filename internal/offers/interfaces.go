package offers

import (
	"context"

	"github.com/google/uuid"

	"github.com/lokum-app/lokum/internal/models"
)

// ResolverStore defines the storage operations the resolver needs. It is
// satisfied by *storage.Tx.
type ResolverStore interface {
	SourcesByURLs(ctx context.Context, urls []string) ([]*models.OfferSource, error)
	InsertOffer(ctx context.Context, o *models.Offer) error
	UpdateSourceObservation(ctx context.Context, s *models.OfferSource) error
	UpdateOfferIdentity(ctx context.Context, o *models.Offer) error
}

// PersisterStore defines the storage operations the persister needs. It is
// satisfied by *storage.Tx.
type PersisterStore interface {
	SourcesByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.OfferSource, error)
	RawInfoBySourceID(ctx context.Context, sourceID uuid.UUID) (*models.OfferRawInfo, error)
	InsertRawInfo(ctx context.Context, ri *models.OfferRawInfo) error
	UpdateRawInfo(ctx context.Context, ri *models.OfferRawInfo) error
	RawInfosByOfferID(ctx context.Context, offerID uuid.UUID) ([]*models.OfferRawInfo, error)
	UpdateOfferConsolidated(ctx context.Context, o *models.Offer) error
}
