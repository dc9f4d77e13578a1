package mongo

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/atelier-portal/portal-sync/internal/core/domain"
)

func TestStorageErr(t *testing.T) {
	if storageErr("op", nil) != nil {
		t.Fatal("nil must stay nil")
	}

	cases := []struct {
		name        string
		err         error
		unavailable bool
	}{
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), true},
		{"disconnected", mongo.ErrClientDisconnected, true},
		{"logic error", errors.New("bad filter"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := storageErr("find", tc.err)
			if got := errors.Is(err, domain.ErrStorageUnavailable); got != tc.unavailable {
				t.Errorf("ErrStorageUnavailable = %v, want %v (err=%v)", got, tc.unavailable, err)
			}
		})
	}
}

func TestAccountDoc_ToDomain(t *testing.T) {
	id := primitive.NewObjectID()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("CET", 3600))
	u := accountDoc{
		ID:        id,
		Username:  "nadia",
		Role:      domain.RoleClient,
		ClientID:  "42",
		CreatedAt: created,
	}.toDomain()

	if u.ID != id.Hex() || u.ClientID != "42" || u.Role != domain.RoleClient {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.CreatedAt.Location() != time.UTC || !u.CreatedAt.Equal(created) {
		t.Errorf("created_at should be normalised to UTC, got %s", u.CreatedAt)
	}
}

func TestUnreadFindOptions_ListsEveryUnreadMessage(t *testing.T) {
	opts := unreadFindOptions()
	if opts.Limit != nil {
		t.Fatalf("unread listings must not be capped, got limit %d", *opts.Limit)
	}
	if opts.BatchSize == nil || *opts.BatchSize != unreadBatchSize {
		t.Errorf("expected cursor batch %d, got %v", unreadBatchSize, opts.BatchSize)
	}
	if opts.Sort == nil {
		t.Error("listing must be sorted newest first")
	}
}
