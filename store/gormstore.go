package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/meeplemeet/server/cache"
	"github.com/meeplemeet/server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GormStore persists documents in a single documents table and fans out
// change notifications over cache.PubSub, one channel per document.
type GormStore struct {
	db     *gorm.DB
	pubsub cache.PubSub
	logger *zap.Logger
}

// NewGormStore creates a document store backed by the given gorm DB.
func NewGormStore(db *gorm.DB, ps cache.PubSub, logger *zap.Logger) *GormStore {
	return &GormStore{db: db, pubsub: ps, logger: logger}
}

func docChannel(collection, id string) string {
	return "doc:" + collection + ":" + id
}

func (s *GormStore) Get(ctx context.Context, collection, id string) (map[string]any, error) {
	return getDoc(s.db.WithContext(ctx), collection, id)
}

func (s *GormStore) Set(ctx context.Context, collection, id string, fields map[string]any) error {
	var merged map[string]any
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		merged, txErr = setDoc(tx, collection, id, fields)
		return txErr
	})
	if err != nil {
		return err
	}
	s.publish(ctx, collection, id, merged)
	return nil
}

func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	err := s.db.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Delete(&model.Document{}).Error
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", collection, id, err)
	}
	s.publish(ctx, collection, id, nil)
	return nil
}

func (s *GormStore) Subscribe(ctx context.Context, collection, id string) (<-chan map[string]any, func(), error) {
	msgCh, unsub, err := s.pubsub.Subscribe(ctx, docChannel(collection, id))
	if err != nil {
		return nil, nil, err
	}

	out := make(chan map[string]any, 16)
	go func() {
		defer close(out)
		// Initial snapshot, if the document exists.
		if snap, err := s.Get(ctx, collection, id); err == nil {
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
		for {
			select {
			case msg, ok := <-msgCh:
				if !ok {
					return
				}
				var fields map[string]any
				if msg.Payload != "" {
					if err := json.Unmarshal([]byte(msg.Payload), &fields); err != nil {
						s.logger.Warn("store: bad subscription payload",
							zap.String("channel", msg.Channel), zap.Error(err))
						continue
					}
				}
				select {
				case out <- fields:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, unsub, nil
}

func (s *GormStore) RunTransaction(ctx context.Context, fn func(tx Tx) error) error {
	gt := &gormTx{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		gt.tx = tx
		gt.touched = nil
		return fn(gt)
	})
	if err != nil {
		return err
	}
	// Notify subscribers only after the transaction committed.
	for _, t := range gt.touched {
		s.publish(ctx, t.collection, t.id, t.fields)
	}
	return nil
}

func (s *GormStore) publish(ctx context.Context, collection, id string, fields map[string]any) {
	payload := ""
	if fields != nil {
		raw, err := json.Marshal(fields)
		if err != nil {
			s.logger.Warn("store: marshal change payload", zap.Error(err))
			return
		}
		payload = string(raw)
	}
	if err := s.pubsub.Publish(ctx, docChannel(collection, id), payload); err != nil {
		s.logger.Warn("store: publish change", zap.String("collection", collection),
			zap.String("id", id), zap.Error(err))
	}
}

// ---- transaction wrapper ----

type touchedDoc struct {
	collection, id string
	fields         map[string]any // nil = deleted
}

type gormTx struct {
	tx      *gorm.DB
	touched []touchedDoc
}

func (g *gormTx) Get(collection, id string) (map[string]any, error) {
	return getDoc(g.tx, collection, id)
}

func (g *gormTx) Set(collection, id string, fields map[string]any) error {
	merged, err := setDoc(g.tx, collection, id, fields)
	if err != nil {
		return err
	}
	g.touched = append(g.touched, touchedDoc{collection: collection, id: id, fields: merged})
	return nil
}

func (g *gormTx) Delete(collection, id string) error {
	err := g.tx.Where("collection = ? AND doc_id = ?", collection, id).
		Delete(&model.Document{}).Error
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", collection, id, err)
	}
	g.touched = append(g.touched, touchedDoc{collection: collection, id: id})
	return nil
}

// ---- shared row helpers ----

func getDoc(tx *gorm.DB, collection, id string) (map[string]any, error) {
	var row model.Document
	err := tx.Where("collection = ? AND doc_id = ?", collection, id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s/%s: %w", collection, id, err)
	}
	// JSONMap decodes numbers as json.Number; re-normalize so callers see
	// the same generic JSON types (float64 and friends) the codecs expect.
	norm, err := normalizeFields(row.Fields)
	if err != nil {
		return nil, fmt.Errorf("store: decode %s/%s: %w", collection, id, err)
	}
	return norm, nil
}

func setDoc(tx *gorm.DB, collection, id string, fields map[string]any) (map[string]any, error) {
	// Normalize through JSON so stored values match what a later Get
	// returns (e.g. ints become float64, structs become maps).
	norm, err := normalizeFields(fields)
	if err != nil {
		return nil, fmt.Errorf("store: encode %s/%s: %w", collection, id, err)
	}

	var row model.Document
	err = tx.Where("collection = ? AND doc_id = ?", collection, id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = model.Document{Collection: collection, DocID: id, Fields: datatypes.JSONMap(norm)}
		if err := tx.Create(&row).Error; err != nil {
			return nil, fmt.Errorf("store: create %s/%s: %w", collection, id, err)
		}
		return norm, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: set %s/%s: %w", collection, id, err)
	}

	merged := mergeFields(row.Fields, norm)
	row.Fields = datatypes.JSONMap(merged)
	if err := tx.Save(&row).Error; err != nil {
		return nil, fmt.Errorf("store: set %s/%s: %w", collection, id, err)
	}
	return merged, nil
}

func normalizeFields(fields map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	var norm map[string]any
	if err := json.Unmarshal(raw, &norm); err != nil {
		return nil, err
	}
	return norm, nil
}
