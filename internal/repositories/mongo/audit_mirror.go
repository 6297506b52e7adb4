package mongo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yoockh/yoomemory/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// AuditMirror copies committed audit entries into a Mongo collection for
// long-term querying. The SQL table stays authoritative.
type AuditMirror interface {
	Mirror(ctx context.Context, entry models.AuditLog) error
	ListByUser(ctx context.Context, userID string, limit int64) ([]models.AuditLog, error)
}

type auditMirror struct {
	col *mongo.Collection
}

func NewAuditMirror(db *mongo.Database, collection string) AuditMirror {
	if collection == "" {
		collection = "audit_logs"
	}
	return &auditMirror{col: db.Collection(collection)}
}

type auditDoc struct {
	models.AuditLog `bson:",inline"`
	Details         bson.M    `bson:"details,omitempty"`
	MirroredAt      time.Time `bson:"mirrored_at"`
}

func (r *auditMirror) Mirror(ctx context.Context, entry models.AuditLog) error {
	doc := auditDoc{AuditLog: entry, MirroredAt: time.Now().UTC()}
	if len(entry.Details) > 0 {
		_ = json.Unmarshal(entry.Details, &doc.Details)
	}
	_, err := r.col.ReplaceOne(ctx,
		bson.M{"_id": entry.ID},
		doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (r *auditMirror) ListByUser(ctx context.Context, userID string, limit int64) ([]models.AuditLog, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []auditDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.AuditLog, 0, len(docs))
	for _, d := range docs {
		entry := d.AuditLog
		if d.Details != nil {
			if b, err := json.Marshal(d.Details); err == nil {
				entry.Details = b
			}
		}
		out = append(out, entry)
	}
	return out, nil
}
