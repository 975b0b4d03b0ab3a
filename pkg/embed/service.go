package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/entityresolve/er/pkg/ererr"
	"github.com/entityresolve/er/pkg/erlog"
	"github.com/entityresolve/er/pkg/erstore"
	"github.com/entityresolve/er/pkg/model"
	"github.com/entityresolve/er/pkg/serialize"
)

func errEmptyCollection(collection string) error {
	return fmt.Errorf("collection %q is empty or does not exist", collection)
}

// CoverageStats reports how much of a collection has an embedding.
type CoverageStats struct {
	Total int
	Embedded int
	Percent float64
}

// Service implements embed_records / embed_record /
// coverage_stats operations over a DocumentStore.
type Service struct {
	store erstore.DocumentStore
	serializer *serialize.Serializer
	encoder Encoder
	log erlog.Logger

	batchSize int
	maxRetries int
}

// Option configures a Service.
type Option func(*Service)

// WithBatchSize overrides the default batch size of 1000.
func WithBatchSize(n int) Option {
	return func(s *Service) { s.batchSize = n }
}

// WithLogger attaches a logger; defaults to erlog.NopLogger.
func WithLogger(l erlog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithMaxRetries overrides the per-batch persistence retry count.
func WithMaxRetries(n int) Option {
	return func(s *Service) { s.maxRetries = n }
}

// New builds an embedding Service.
func New(store erstore.DocumentStore, serializer *serialize.Serializer, encoder Encoder, opts...Option) *Service {
	s := &Service{
		store: store,
		serializer: serializer,
		encoder: encoder,
		log: erlog.NopLogger(),
		batchSize: 1000,
		maxRetries: 3,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// EmbedRecord encodes a single record's serialized text, without
// persisting it — the single-record variant of.
func (s *Service) EmbedRecord(ctx context.Context, r *model.Record) ([]float32, error) {
	text := s.serializer.Serialize(r)
	if text == "" {
		return nil, ererr.Validation("embed.EmbedRecord", errEmptyText)
	}
	vec, err := s.encoder.Embed(ctx, text)
	if err != nil {
		return nil, ererr.ModelUnavailable("embed.EmbedRecord", err)
	}
	return vec, nil
}

// EmbedRecords iterates every record in collection lacking an embedding,
// encodes it in batches, and persists embedding + embedding_meta,
// returning the count stored. limit <= 0 means unbounded.
func (s *Service) EmbedRecords(ctx context.Context, collection string, limit int) (int, error) {
	n, err := s.store.Count(ctx, collection)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ererr.Validation("embed.EmbedRecords", errEmptyCollection(collection))
	}

	var batch []*model.Record
	stored := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.embedAndPersistBatch(ctx, batch); err != nil {
			return err
		}
		stored += len(batch)
		batch = batch[:0]
		return nil
	}

	var scanErr error
	err = s.store.Scan(ctx, collection, func(r *model.Record) bool {
			if ctx.Err() != nil {
				scanErr = ctx.Err()
				return false
			}
			if r.Embedding != nil {
				return true
			}
			if limit > 0 && stored+len(batch) >= limit {
				return false
			}
			batch = append(batch, r)
			if len(batch) >= s.batchSize {
				if err := flush(); err != nil {
					scanErr = err
					return false
				}
			}
			return true
		})
	if err != nil {
		return stored, err
	}
	if scanErr != nil {
		return stored, scanErr
	}
	if err := flush(); err != nil {
		return stored, err
	}
	return stored, nil
}

func (s *Service) embedAndPersistBatch(ctx context.Context, batch []*model.Record) error {
	now := time.Now().UTC()
	toPersist := make([]*model.Record, 0, len(batch))
	for _, r := range batch {
		text := s.serializer.Serialize(r)
		if text == "" {
			s.log.Warn("embed: skipping record with empty serialization", "collection", r.Collection, "id", r.ID)
			continue
		}
		vec, err := s.encoder.Embed(ctx, text)
		if err != nil {
			return ererr.ModelUnavailable("embed.embedAndPersistBatch", err)
		}
		r.Embedding = vec
		r.EmbedMeta = &model.EmbeddingMeta{ModelID: s.encoder.ModelID(), Dim: s.encoder.Dim(), CreatedAt: now}
		toPersist = append(toPersist, r)
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if _, err := s.store.UpsertMany(ctx, toPersist); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return ererr.Database("embed.embedAndPersistBatch", lastErr)
}

// CoverageStats reports embedding coverage for collection.
func (s *Service) CoverageStats(ctx context.Context, collection string) (CoverageStats, error) {
	total, err := s.store.Count(ctx, collection)
	if err != nil {
		return CoverageStats{}, err
	}
	embedded := 0
	err = s.store.Scan(ctx, collection, func(r *model.Record) bool {
			if r.Embedding != nil {
				embedded++
			}
			return true
		})
	if err != nil {
		return CoverageStats{}, err
	}
	stats := CoverageStats{Total: total, Embedded: embedded}
	if total > 0 {
		stats.Percent = float64(embedded) / float64(total) * 100
	}
	return stats, nil
}

// EmbedRecordsMultiRes writes both a coarse (fast pre-filter) and fine
// (precise re-rank) embedding per record, each from its own encoder,
// supporting the LSH-then-exact-ANN two-stage pattern.
func (s *Service) EmbedRecordsMultiRes(ctx context.Context, collection string, coarse, fine Encoder, limit int) (int, error) {
	var batch []*model.Record
	stored := 0
	now := time.Now().UTC()

	err := s.store.Scan(ctx, collection, func(r *model.Record) bool {
			if ctx.Err() != nil {
				return false
			}
			if r.Coarse != nil && r.Embedding != nil {
				return true
			}
			if limit > 0 && stored >= limit {
				return false
			}
			text := s.serializer.Serialize(r)
			if text == "" {
				s.log.Warn("embed: skipping record with empty serialization", "id", r.ID)
				return true
			}
			coarseVec, err := coarse.Embed(ctx, text)
			if err != nil {
				return false
			}
			fineVec, err := fine.Embed(ctx, text)
			if err != nil {
				return false
			}
			r.Coarse = coarseVec
			r.CoarseMeta = &model.EmbeddingMeta{ModelID: coarse.ModelID(), Dim: coarse.Dim(), CreatedAt: now}
			r.Embedding = fineVec
			r.EmbedMeta = &model.EmbeddingMeta{ModelID: fine.ModelID(), Dim: fine.Dim(), CreatedAt: now}
			batch = append(batch, r)
			stored++
			return true
		})
	if err != nil {
		return stored, err
	}
	if len(batch) > 0 {
		if _, err := s.store.UpsertMany(ctx, batch); err != nil {
			return stored, ererr.Database("embed.EmbedRecordsMultiRes", err)
		}
	}
	return stored, nil
}
