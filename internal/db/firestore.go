package db

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
)

// NewFirestoreClient uses application default credentials, or the emulator
// when FIRESTORE_EMULATOR_HOST is set.
func NewFirestoreClient(ctx context.Context, projectID string, log *zap.Logger) (*firestore.Client, error) {
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create firestore client: %w", err)
	}
	log.Info("firestore connected", zap.String("project_id", projectID))
	return client, nil
}
