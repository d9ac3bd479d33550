// Package docstore reads activity logs and user profiles from Firestore,
// using the layout written by the mobile client:
// activity_logs/{collection}/logs/{id} and users/{id}.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/tsiken/backend/internal/models"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	activityLogsRoot  = "activity_logs"
	logsSubcollection = "logs"
	usersCollection   = "users"
)

type LogSource struct {
	client *firestore.Client
}

func NewLogSource(client *firestore.Client) *LogSource {
	return &LogSource{client: client}
}

func (s *LogSource) Read(ctx context.Context, collection, actorID string) ([]models.RawRecord, error) {
	q := s.client.Collection(activityLogsRoot).Doc(collection).Collection(logsSubcollection).Query
	if actorID != "" {
		q = q.Where("userId", "==", actorID)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	var recs []models.RawRecord
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", collection, err)
		}
		recs = append(recs, models.RawRecord{
			ID:         doc.Ref.ID,
			Collection: collection,
			Data:       doc.Data(),
		})
	}
	return recs, nil
}

func (s *LogSource) Append(ctx context.Context, rec models.NewLogRecord) error {
	data := make(map[string]any, len(rec.Meta)+5)
	for k, v := range rec.Meta {
		data[k] = v
	}
	data["userId"] = rec.UserID
	data["userName"] = rec.UserName
	data["action"] = rec.Action
	data["description"] = rec.Description
	if rec.Timestamp.IsZero() {
		data["timestamp"] = firestore.ServerTimestamp
	} else {
		data["timestamp"] = rec.Timestamp
	}

	_, _, err := s.client.Collection(activityLogsRoot).Doc(rec.Collection).Collection(logsSubcollection).Add(ctx, data)
	return err
}

type userDoc struct {
	FirstName string `firestore:"firstName"`
	LastName  string `firestore:"lastName"`
	Email     string `firestore:"email"`
	Role      string `firestore:"role"`
}

// UserDirectory resolves actor profiles from the users collection.
type UserDirectory struct {
	client *firestore.Client
}

func NewUserDirectory(client *firestore.Client) *UserDirectory {
	return &UserDirectory{client: client}
}

func (d *UserDirectory) GetProfile(ctx context.Context, id string) (*models.UserProfile, error) {
	if id == "" {
		return nil, nil
	}
	snap, err := d.client.Collection(usersCollection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, err
	}

	var u userDoc
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &models.UserProfile{
		ID:        id,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
	}, nil
}
