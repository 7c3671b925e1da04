// Package ingestion implements the Notion ingestion pipeline. It ensures the
// target collection exists, skips documents the ledger shows are unchanged,
// embeds the rest in batches and upserts the resulting points.
// This pipeline is invoked by the `notion-llm ingest` CLI command.
package ingestion

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/karthikgk97/notion-llm/internal/logging"
	"github.com/karthikgk97/notion-llm/internal/rag"
	"github.com/karthikgk97/notion-llm/internal/store"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// Collection is the vector collection documents are written to.
	Collection string

	// TitleKey is the payload key that receives each document's key.
	// Defaults to DefaultTitleKey if empty.
	TitleKey string

	// BatchSize is the number of documents embedded and upserted together.
	// Defaults to rag.DefaultBatchSize if zero.
	BatchSize int

	// Extra is static metadata added to every point. Document metadata and
	// the title override it.
	Extra map[string]string

	// Force re-embeds every document even when the ledger shows it unchanged.
	Force bool

	// Metrics receives ingestion counters. Nil disables metrics.
	Metrics *Metrics
}

// Result summarises one pipeline run.
type Result struct {
	// Created reports whether the collection was created by this run.
	Created bool
	// Total is the number of documents passed to Run.
	Total int
	// Skipped is the number of documents the ledger showed unchanged.
	Skipped int
	// Upserted is the number of points written.
	Upserted int
}

// Progress is called after each document is skipped or written. done counts
// documents handled so far out of total.
type Progress func(done, total int)

// Pipeline orchestrates the ensure → diff → embed → upsert → record flow for
// a set of documents.
type Pipeline struct {
	// collections creates the collection and writes batches.
	collections *rag.CollectionManager

	// builder turns documents into points.
	builder *rag.PointBuilder

	// ledger remembers what was ingested. May be nil.
	ledger store.Ledger

	// cfg holds the resolved pipeline configuration.
	cfg Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
// ledger may be nil, in which case every document is embedded on every run.
func NewPipeline(collections *rag.CollectionManager, builder *rag.PointBuilder, ledger store.Ledger, cfg *Config) (*Pipeline, error) {
	if collections == nil {
		return nil, fmt.Errorf("ingestion: collection manager must not be nil")
	}
	if builder == nil {
		return nil, fmt.Errorf("ingestion: point builder must not be nil")
	}
	if cfg == nil || cfg.Collection == "" {
		return nil, fmt.Errorf("ingestion: collection name is required")
	}
	c := *cfg
	if c.TitleKey == "" {
		c.TitleKey = DefaultTitleKey
	}
	if c.TitleKey == rag.DocumentKey {
		return nil, fmt.Errorf("ingestion: title key %q is reserved", rag.DocumentKey)
	}
	if c.BatchSize <= 0 {
		c.BatchSize = rag.DefaultBatchSize
	}
	return &Pipeline{collections: collections, builder: builder, ledger: ledger, cfg: c}, nil
}

// pending is a document that needs embedding, with its resolved metadata.
type pending struct {
	doc  rag.Document
	meta map[string]string
	hash string
}

// Run ingests docs into the configured collection. Documents are written in
// batches of cfg.BatchSize; a failed batch stops the run, leaving earlier
// batches committed and recorded. Progress may be nil.
func (p *Pipeline) Run(ctx context.Context, docs []rag.Document, progress Progress) (Result, error) {
	ctx, log := logging.With(ctx, slog.String("collection", p.cfg.Collection))
	if progress == nil {
		progress = func(int, int) {}
	}
	res := Result{Total: len(docs)}

	created, err := p.collections.Create(ctx, p.cfg.Collection)
	if err != nil {
		return res, fmt.Errorf("ingestion: ensuring collection: %w", err)
	}
	res.Created = created
	if created && p.ledger != nil {
		// Entries for a collection that no longer existed describe nothing.
		if n, err := p.ledger.Forget(ctx, p.cfg.Collection); err != nil {
			return res, fmt.Errorf("ingestion: resetting ledger: %w", err)
		} else if n > 0 {
			log.Info("ingestion: dropped stale ledger entries", slog.Int64("entries", n))
		}
	}

	var todo []pending
	done := 0
	for _, doc := range docs {
		item := pending{doc: doc, meta: documentMetadata(doc, p.cfg.TitleKey, p.cfg.Extra), hash: ContentHash(doc.Text)}
		skip, err := p.unchanged(ctx, item)
		if err != nil {
			return res, err
		}
		if skip {
			res.Skipped++
			done++
			p.cfg.Metrics.observeDocuments(p.cfg.Collection, outcomeSkipped, 1)
			progress(done, res.Total)
			continue
		}
		todo = append(todo, item)
	}
	if res.Skipped > 0 {
		log.Info("ingestion: skipping unchanged documents", slog.Int("skipped", res.Skipped))
	}

	for start := 0; start < len(todo); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(todo))
		batch := todo[start:end]

		began := time.Now()
		if err := p.writeBatch(ctx, batch); err != nil {
			p.cfg.Metrics.observeDocuments(p.cfg.Collection, outcomeFailed, len(batch))
			return res, fmt.Errorf("ingestion: documents %d-%d of %d (%d upserted): %w",
				start+1, end, len(todo), res.Upserted, err)
		}
		p.cfg.Metrics.observeBatch(p.cfg.Collection, time.Since(began))
		p.cfg.Metrics.observeDocuments(p.cfg.Collection, outcomeUpserted, len(batch))

		res.Upserted += len(batch)
		done += len(batch)
		progress(done, res.Total)
		log.Debug("ingestion: batch written", slog.Int("points", len(batch)), slog.Int("upserted", res.Upserted))
	}

	log.Info("ingestion: complete",
		slog.Int("total", res.Total),
		slog.Int("skipped", res.Skipped),
		slog.Int("upserted", res.Upserted),
	)
	return res, nil
}

// unchanged reports whether the ledger already holds item with the same
// content hash and point id.
func (p *Pipeline) unchanged(ctx context.Context, item pending) (bool, error) {
	if p.ledger == nil || p.cfg.Force {
		return false, nil
	}
	e, ok, err := p.ledger.Lookup(ctx, p.cfg.Collection, item.doc.Key)
	if err != nil {
		return false, fmt.Errorf("ingestion: ledger lookup for %q: %w", item.doc.Key, err)
	}
	return ok && e.ContentSHA256 == item.hash && e.PointID == rag.PointID(item.doc.Key).String(), nil
}

// writeBatch embeds, upserts and records one batch.
func (p *Pipeline) writeBatch(ctx context.Context, batch []pending) error {
	keys := make([]string, len(batch))
	texts := make([]string, len(batch))
	metas := make([]map[string]string, len(batch))
	for i, item := range batch {
		keys[i] = item.doc.Key
		texts[i] = item.doc.Text
		metas[i] = item.meta
	}

	points, err := p.builder.BuildBatch(ctx, keys, texts, metas)
	if err != nil {
		return err
	}
	if err := p.collections.Upsert(ctx, p.cfg.Collection, points, len(points)); err != nil {
		return err
	}

	if p.ledger == nil {
		return nil
	}
	now := time.Now()
	for i, item := range batch {
		err := p.ledger.Record(ctx, store.Entry{
			Collection:    p.cfg.Collection,
			Key:           item.doc.Key,
			PointID:       points[i].ID.String(),
			ContentSHA256: item.hash,
			IngestedAt:    now,
		})
		if err != nil {
			return fmt.Errorf("recording %q: %w", item.doc.Key, err)
		}
	}
	return nil
}

// ContentHash returns the hex SHA-256 of text.
func ContentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
