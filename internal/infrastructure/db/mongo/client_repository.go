package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

const collectionClients = "clients"

// ClientRepository touches only the type_diagnostic field of client records;
// the rest of the document belongs to client management.
type ClientRepository struct {
	col *mongo.Collection
	now func() time.Time
}

func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{col: db.Collection(collectionClients), now: time.Now}
}

func (r *ClientRepository) FindByID(ctx context.Context, clientID string) (*domain.ClientRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var c domain.ClientRecord
	if err := r.col.FindOne(ctx, bson.M{"_id": clientID}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrClientNotFound
		}
		return nil, storageErr("find client", err)
	}
	return &c, nil
}

// SetTypeDiagnostic overwrites the mirror field. An unknown client yields
// domain.ErrClientNotFound.
func (r *ClientRepository) SetTypeDiagnostic(ctx context.Context, clientID, value string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": clientID},
		bson.M{"$set": bson.M{"type_diagnostic": value, "updated_at": r.now().UTC()}},
	)
	if err != nil {
		return storageErr("set type_diagnostic", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrClientNotFound
	}
	return nil
}
