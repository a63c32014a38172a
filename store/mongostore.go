package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// MongoStore persists each logical collection as a native MongoDB
// collection, one document per entity with _id as the document id.
type MongoStore struct {
	client  *mongo.Client
	db      *mongo.Database
	pollIvl time.Duration
	logger  *zap.Logger
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI      string
	Database string
	// SubscribePoll is the poll interval used by Subscribe; change streams
	// require a replica set, so subscriptions poll the document instead.
	SubscribePoll time.Duration
}

// NewMongoStore connects to MongoDB and returns a document store.
func NewMongoStore(ctx context.Context, cfg MongoConfig, logger *zap.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("store: mongo connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		return nil, fmt.Errorf("store: mongo ping: %w", err)
	}
	poll := cfg.SubscribePoll
	if poll <= 0 {
		poll = time.Second
	}
	return &MongoStore{
		client:  client,
		db:      client.Database(cfg.Database),
		pollIvl: poll,
		logger:  logger,
	}, nil
}

// Close disconnects the underlying client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	return mongoGet(ctx, s.db, collection, id)
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	return mongoSet(ctx, s.db, collection, id, fields)
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// Subscribe polls the document and emits a snapshot whenever it changes.
func (s *MongoStore) Subscribe(ctx context.Context, collection, id string) (<-chan map[string]any, func(), error) {
	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan map[string]any, 16)

	go func() {
		defer close(out)
		var last map[string]any
		haveLast := false
		ticker := time.NewTicker(s.pollIvl)
		defer ticker.Stop()

		emit := func() {
			snap, err := s.Get(subCtx, collection, id)
			if err != nil {
				if !errors.Is(err, ErrNotFound) {
					s.logger.Warn("store: subscribe poll", zap.Error(err))
				}
				return
			}
			if haveLast && reflect.DeepEqual(last, snap) {
				return
			}
			last, haveLast = snap, true
			select {
			case out <- snap:
			case <-subCtx.Done():
			}
		}

		emit()
		for {
			select {
			case <-ticker.C:
				emit()
			case <-subCtx.Done():
				return
			}
		}
	}()

	return out, cancel, nil
}

func (s *MongoStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("store: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(&mongoTx{ctx: sc, db: s.db})
	})
	if err != nil && isNoTransactionSupport(err) {
		// Standalone deployment: apply the writes without a session.
		// Two-sided relationship writes lose atomicity here, which the
		// deployment docs call out; production runs against a replica set.
		s.logger.Warn("store: transactions unsupported, applying writes unsessioned")
		return fn(&mongoTx{ctx: ctx, db: s.db})
	}
	return err
}

// isNoTransactionSupport detects the server error a standalone mongod
// returns for transactional operations.
func isNoTransactionSupport(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "Transaction numbers") ||
		strings.Contains(msg, "IllegalOperation")
}

type mongoTx struct {
	ctx context.Context
	db  *mongo.Database
}

func (t *mongoTx) Get(collection, id string) (map[string]any, error) {
	return mongoGet(t.ctx, t.db, collection, id)
}

func (t *mongoTx) Set(collection, id string, fields map[string]any) error {
	return mongoSet(t.ctx, t.db, collection, id, fields)
}

func (t *mongoTx) Delete(collection, id string) error {
	_, err := t.db.Collection(collection).DeleteOne(t.ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// ---- shared document helpers ----

func mongoGet(ctx context.Context, db *mongo.Database, collection, id string) (map[string]any, error) {
	var raw bson.M
	err := db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s/%s: %w", collection, id, err)
	}
	delete(raw, "_id")
	fields, ok := fromBSON(map[string]any(raw)).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("store: get %s/%s: unexpected document shape", collection, id)
	}
	return fields, nil
}

func mongoSet(ctx context.Context, db *mongo.Database, collection, id string, fields map[string]any) error {
	norm, err := normalizeFields(fields)
	if err != nil {
		return fmt.Errorf("store: encode %s/%s: %w", collection, id, err)
	}
	_, err = db.Collection(collection).UpdateByID(ctx, id,
		bson.M{"$set": bson.M(norm)}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store: set %s/%s: %w", collection, id, err)
	}
	return nil
}

// fromBSON converts BSON decoding artifacts (primitive.A, bson.M, int32…)
// into the generic JSON types the codecs expect, so both backends return
// identical shapes.
func fromBSON(v any) any {
	switch val := v.(type) {
	case bson.M:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = fromBSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = fromBSON(item)
		}
		return out
	case bson.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromBSON(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = fromBSON(item)
		}
		return out
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case int:
		return float64(val)
	default:
		return v
	}
}
