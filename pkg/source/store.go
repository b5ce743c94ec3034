// Package source reads the document store being mirrored. The store is
// strictly read-only from the sync's perspective.
package source

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/carewell-health/datahub-sync/pkg/retry"
)

// Store wraps a client for one source database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials the source store and verifies the connection. The ping
// is retried with backoff like the relational pools: scheduled cycles
// may race a cold replica set.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to source store: %w", err)
	}
	err = retry.Do(ctx, retry.DefaultConfig(), func() error {
		return client.Ping(ctx, readpref.Primary())
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping source store: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// CollectionNames lists every collection in the source database.
func (s *Store) CollectionNames(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return names, nil
}

// EstimatedCount returns the source cardinality of a collection from
// collection metadata. Cheap, and precise enough for shard balancing
// and the post-load lower-bound check.
func (s *Store) EstimatedCount(ctx context.Context, collection string) (int64, error) {
	n, err := s.db.Collection(collection).EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

// FieldNames returns every top-level field name appearing in any
// document of the collection, byte-ascending. The sort makes field
// enumeration order, and therefore case-collision handling, stable
// across runs.
func (s *Store) FieldNames(ctx context.Context, collection string) ([]string, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$project", Value: bson.M{"kv": bson.M{"$objectToArray": "$$ROOT"}}}},
		{{Key: "$unwind", Value: "$kv"}},
		{{Key: "$group", Value: bson.M{"_id": "$kv.k"}}},
		{{Key: "$sort", Value: bson.M{"_id": 1}}},
	}
	cursor, err := s.db.Collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("enumerate fields of %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var names []string
	for cursor.Next(ctx) {
		var row struct {
			Name string `bson:"_id"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode field name: %w", err)
		}
		names = append(names, row.Name)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("enumerate fields of %s: %w", collection, err)
	}
	return names, nil
}

// SampleWithField fetches one document that contains the given field.
func (s *Store) SampleWithField(ctx context.Context, collection, field string) (map[string]any, error) {
	var doc bson.M
	err := s.db.Collection(collection).
		FindOne(ctx, bson.M{field: bson.M{"$exists": true}}).
		Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("sample %s.%s: %w", collection, field, err)
	}
	return map[string]any(doc), nil
}

// Iterate walks a collection in natural order and calls fn for each
// document. A positive limit caps the walk (test-environment runs).
// Iteration stops on the first fn error.
func (s *Store) Iterate(ctx context.Context, collection string, limit int64, fn func(doc map[string]any) error) error {
	opts := options.Find()
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cursor, err := s.db.Collection(collection).Find(ctx, bson.D{}, opts)
	if err != nil {
		return fmt.Errorf("open cursor on %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return fmt.Errorf("decode document from %s: %w", collection, err)
		}
		if err := fn(map[string]any(doc)); err != nil {
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		return fmt.Errorf("cursor on %s: %w", collection, err)
	}
	return nil
}
