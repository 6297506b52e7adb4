package config

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const AuditMirrorCollection = "audit_logs"

// OpenMongo connects the audit mirror database and makes sure its indexes
// exist. Index failures are returned alongside a usable handle.
func OpenMongo(ctx context.Context, s *Settings) (*mongo.Client, *mongo.Database, error) {
	if s.MongoURI == "" {
		return nil, nil, errors.New("mongo uri is empty")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := options.Client().
		ApplyURI(s.MongoURI).
		SetAppName("yoomemory").
		SetServerSelectionTimeout(20 * time.Second).
		SetConnectTimeout(15 * time.Second).
		SetMaxPoolSize(10).
		SetMinPoolSize(1)
	if s.MongoPinTLS12 {
		opts.SetTLSConfig(&tls.Config{
			InsecureSkipVerify: s.MongoInsecureTLS,
			MinVersion:         tls.VersionTLS12,
			MaxVersion:         tls.VersionTLS12,
		})
	}

	client, err := mongo.Connect(dialCtx, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(dialCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	db := client.Database(s.MongoDB)
	if err := ensureAuditIndexes(ctx, db.Collection(AuditMirrorCollection)); err != nil {
		return client, db, fmt.Errorf("audit indexes: %w", err)
	}
	return client, db, nil
}

func ensureAuditIndexes(ctx context.Context, coll *mongo.Collection) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("by_user_ts"),
		},
		{
			Keys:    bson.D{{Key: "action", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("by_action_ts"),
		},
	})
	return err
}
