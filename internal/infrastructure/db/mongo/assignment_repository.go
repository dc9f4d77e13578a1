package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

const collectionAssignments = "assignments"

type AssignmentRepository struct {
	col *mongo.Collection
}

func NewAssignmentRepository(db *mongo.Database) *AssignmentRepository {
	return &AssignmentRepository{col: db.Collection(collectionAssignments)}
}

// Replace upserts the single assignment document for a.ClientID. The unique
// index on client_id makes concurrent upserts race on insert; the loser gets
// a duplicate-key error and retries as an update.
func (r *AssignmentRepository) Replace(ctx context.Context, a *domain.Assignment) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{"client_id": a.ClientID}
	opts := options.Replace().SetUpsert(true)

	_, err := r.col.ReplaceOne(ctx, filter, a, opts)
	if mongo.IsDuplicateKeyError(err) {
		_, err = r.col.ReplaceOne(ctx, filter, a, opts)
	}
	return storageErr("replace assignment", err)
}

// Delete removes the assignment. Deleting a missing row is a no-op.
func (r *AssignmentRepository) Delete(ctx context.Context, clientID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.DeleteOne(ctx, bson.M{"client_id": clientID})
	return storageErr("delete assignment", err)
}

func (r *AssignmentRepository) FindByClient(ctx context.Context, clientID string) (*domain.Assignment, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var a domain.Assignment
	err := r.col.FindOne(ctx, bson.M{"client_id": clientID}).Decode(&a)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAssignmentNotFound
		}
		return nil, storageErr("find assignment", err)
	}
	return &a, nil
}

// EnsureIndexes creates the unique client_id index that enforces one
// assignment per client.
func (r *AssignmentRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "client_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}
