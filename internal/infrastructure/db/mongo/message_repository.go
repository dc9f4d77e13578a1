package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

const collectionMessages = "messages"

// unreadBatchSize is the cursor batch for unread listings. Listings are not
// capped: every unread message must surface.
const unreadBatchSize = 200

type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection(collectionMessages)}
}

func (r *MessageRepository) Insert(ctx context.Context, m *domain.Message) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.InsertOne(ctx, m)
	return storageErr("insert message", err)
}

// ListUnread returns all of the client's unread messages, newest first,
// skipping those written by exclude.
func (r *MessageRepository) ListUnread(ctx context.Context, clientID string, exclude domain.SenderType) ([]domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	filter := bson.M{
		"client_id":   clientID,
		"read":        false,
		"sender_type": bson.M{"$ne": exclude},
	}
	cur, err := r.col.Find(ctx, filter, unreadFindOptions())
	if err != nil {
		return nil, storageErr("list unread", err)
	}
	defer cur.Close(ctx)

	out := make([]domain.Message, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, storageErr("decode unread", err)
	}
	return out, nil
}

func unreadFindOptions() *options.FindOptions {
	return options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetBatchSize(unreadBatchSize)
}

// MarkRead only matches rows still unread, so read_at keeps the first read time.
func (r *MessageRepository) MarkRead(ctx context.Context, ids []string, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := r.col.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "read": false},
		bson.M{"$set": bson.M{"read": true, "read_at": at.UTC()}},
	)
	if err != nil {
		return 0, storageErr("mark read", err)
	}
	return res.ModifiedCount, nil
}

// EnsureIndexes creates the index backing unread listings.
func (r *MessageRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "read", Value: 1}, {Key: "created_at", Value: -1}}},
	}
	_, err := r.col.Indexes().CreateMany(ctx, indexes)
	return err
}
