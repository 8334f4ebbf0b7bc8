// Package storage wraps the MongoDB connection and the metadata surface the
// tool server exposes over it.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 10 * time.Second

// DB owns a MongoDB client and a database handle.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

// New connects to MongoDB and verifies the connection with a ping.
func New(ctx context.Context, uri, database string, logger *slog.Logger) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	logger.Info("connected to mongodb", "database", database)
	return &DB{
		client: client,
		db:     client.Database(database),
		logger: logger,
	}, nil
}

// Close disconnects the client.
func (d *DB) Close(ctx context.Context) {
	if err := d.client.Disconnect(ctx); err != nil {
		d.logger.Warn("mongodb disconnect failed", "error", err)
	}
}

// Ping verifies the connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, nil)
}

// Name returns the database name.
func (d *DB) Name() string {
	return d.db.Name()
}

// Aggregate runs an aggregation pipeline and returns the raw documents.
func (d *DB) Aggregate(ctx context.Context, collection string, stages []bson.M) ([]bson.M, error) {
	pipeline := make(mongo.Pipeline, 0, len(stages))
	for _, stage := range stages {
		doc, err := toBsonD(stage)
		if err != nil {
			return nil, fmt.Errorf("storage: encode stage: %w", err)
		}
		pipeline = append(pipeline, doc)
	}

	cursor, err := d.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	var out []bson.M
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListCollections returns the names of all collections in the database.
func (d *DB) ListCollections(ctx context.Context) ([]string, error) {
	names, err := d.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("storage: list collections: %w", err)
	}
	return names, nil
}

// InferSchema derives a field→type map from one sampled document.
// An empty collection yields an empty map.
func (d *DB) InferSchema(ctx context.Context, collection string) (map[string]any, error) {
	var sample bson.M
	err := d.db.Collection(collection).FindOne(ctx, bson.D{}).Decode(&sample)
	if err == mongo.ErrNoDocuments {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: sample for schema: %w", err)
	}

	schema := make(map[string]any, len(sample))
	for field, value := range sample {
		if field == "_id" {
			continue
		}
		schema[field] = map[string]any{"type": bsonTypeName(value)}
	}
	return schema, nil
}

// SampleDocuments returns up to limit documents, optionally filtered.
func (d *DB) SampleDocuments(ctx context.Context, collection string, limit int, filter bson.M) ([]bson.M, error) {
	if filter == nil {
		filter = bson.M{}
	}
	opts := options.Find().SetLimit(int64(limit))
	cursor, err := d.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("storage: sample documents: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var out []bson.M
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("storage: decode samples: %w", err)
	}
	return out, nil
}

// DistinctValues returns up to limit distinct values for a field.
func (d *DB) DistinctValues(ctx context.Context, collection, field string, limit int) ([]any, error) {
	values, err := d.db.Collection(collection).Distinct(ctx, field, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("storage: distinct %s: %w", field, err)
	}
	if limit > 0 && len(values) > limit {
		values = values[:limit]
	}
	return values, nil
}

// FieldStatistics returns count/min/max/avg for a numeric field.
func (d *DB) FieldStatistics(ctx context.Context, collection, field string) (map[string]any, error) {
	fieldRef := "$" + field
	results, err := d.Aggregate(ctx, collection, []bson.M{
		{"$group": bson.M{
			"_id":   nil,
			"count": bson.M{"$sum": 1},
			"min":   bson.M{"$min": fieldRef},
			"max":   bson.M{"$max": fieldRef},
			"avg":   bson.M{"$avg": fieldRef},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("storage: statistics for %s: %w", field, err)
	}
	if len(results) == 0 {
		return map[string]any{}, nil
	}
	stats := map[string]any(results[0])
	delete(stats, "_id")
	return stats, nil
}

// ListIndexes returns the collection's index descriptors.
func (d *DB) ListIndexes(ctx context.Context, collection string) ([]bson.M, error) {
	cursor, err := d.db.Collection(collection).Indexes().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage: list indexes: %w", err)
	}
	defer func() { _ = cursor.Close(ctx) }()

	var out []bson.M
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("storage: decode indexes: %w", err)
	}
	return out, nil
}

// CountDocuments returns the collection's document count.
func (d *DB) CountDocuments(ctx context.Context, collection string) (int64, error) {
	return d.db.Collection(collection).CountDocuments(ctx, bson.D{})
}

// InsertEvents inserts event documents in one batch. Used by the seeder.
func (d *DB) InsertEvents(ctx context.Context, collection string, docs []any) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := d.db.Collection(collection).InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("storage: insert events: %w", err)
	}
	return nil
}

// DropCollection removes a collection entirely. Used by the seeder for a
// clean reload.
func (d *DB) DropCollection(ctx context.Context, collection string) error {
	if err := d.db.Collection(collection).Drop(ctx); err != nil {
		return fmt.Errorf("storage: drop %s: %w", collection, err)
	}
	return nil
}

// EnsureEventIndexes creates single-field indexes on the common query fields.
func (d *DB) EnsureEventIndexes(ctx context.Context, collection string) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "event_type", Value: 1}}},
		{Keys: bson.D{{Key: "event_timestamp", Value: 1}}},
		{Keys: bson.D{{Key: "user", Value: 1}}},
	}
	if _, err := d.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("storage: create indexes: %w", err)
	}
	return nil
}

// toBsonD re-encodes a map stage into an ordered document the driver accepts
// inside a mongo.Pipeline.
func toBsonD(stage bson.M) (bson.D, error) {
	data, err := bson.Marshal(stage)
	if err != nil {
		return nil, err
	}
	var doc bson.D
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// bsonTypeName maps a decoded BSON value to the type vocabulary the schema
// context uses.
func bsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case int32, int64, float64:
		return "number"
	case primitive.DateTime, time.Time:
		return "date"
	case bool:
		return "bool"
	case bson.M, bson.D, map[string]any:
		return "object"
	case bson.A, []any:
		return "array"
	case primitive.ObjectID:
		return "objectId"
	default:
		return fmt.Sprintf("%T", v)
	}
}
