package batch

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agentscholar/kindex/internal/core"
	kberrors "github.com/agentscholar/kindex/internal/errors"
	"github.com/agentscholar/kindex/internal/logger"
	"github.com/agentscholar/kindex/internal/rag"
)

const (
	// maxSubBatchSize caps how many documents a dispatch wave holds, even
	// when more workers are configured.
	maxSubBatchSize = 10

	// DefaultWorkers bounds concurrent document pipelines when the caller
	// does not say otherwise.
	DefaultWorkers = 4

	// DefaultDocumentTimeout bounds one document's chunk-embed-upsert run.
	DefaultDocumentTimeout = 2 * time.Minute

	// DefaultPause spaces out dispatch waves so the embedding endpoint and
	// the index are not hammered continuously.
	DefaultPause = 1 * time.Second
)

// Options tune a batch run. Zero values fall back to the defaults above.
type Options struct {
	Prefix          string
	MaxDocuments    int
	Workers         int
	DocumentTimeout time.Duration
	Pause           time.Duration
}

// Coordinator drives a batch ingestion run: list the source, dispatch
// documents to a bounded worker pool in paced sub-batches, and collect
// per-document results.
type Coordinator struct {
	source  core.DocumentSource
	indexer *rag.DocumentIndexer
	opts    Options
}

// NewCoordinator builds a coordinator over the given source and indexer.
func NewCoordinator(source core.DocumentSource, indexer *rag.DocumentIndexer, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.DocumentTimeout <= 0 {
		opts.DocumentTimeout = DefaultDocumentTimeout
	}
	if opts.Pause < 0 {
		opts.Pause = DefaultPause
	}
	return &Coordinator{source: source, indexer: indexer, opts: opts}
}

// subBatchSize keeps dispatch waves small enough that a pause between waves
// actually paces the downstream services.
func subBatchSize(workers int) int {
	if workers < maxSubBatchSize {
		return workers
	}
	return maxSubBatchSize
}

// Run executes the batch. It never fails the whole run because single
// documents failed; errors surface in the per-document results. An empty
// listing is a successful run with zero work.
func (c *Coordinator) Run(ctx context.Context) (*core.BatchResult, error) {
	result := &core.BatchResult{RunID: uuid.NewString()}

	logger.Info("Batch %s: listing source (prefix=%q, max=%d)",
		result.RunID, c.opts.Prefix, c.opts.MaxDocuments)
	objects, err := c.source.List(ctx, c.opts.Prefix, c.opts.MaxDocuments)
	if err != nil {
		return nil, err
	}
	if len(objects) == 0 {
		logger.Info("Batch %s: nothing to ingest", result.RunID)
		return result, nil
	}

	size := subBatchSize(c.opts.Workers)
	var mu sync.Mutex

	for start := 0; start < len(objects); start += size {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + size
		if end > len(objects) {
			end = len(objects)
		}
		wave := objects[start:end]
		logger.Debug("Batch %s: dispatching documents %d-%d of %d",
			result.RunID, start+1, end, len(objects))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.opts.Workers)
		for _, obj := range wave {
			obj := obj
			g.Go(func() error {
				res := c.processObject(gctx, obj)
				mu.Lock()
				result.Results = append(result.Results, res)
				mu.Unlock()
				return nil
			})
		}
		// Workers report failures through their DocumentResult, never
		// through the group error.
		_ = g.Wait()

		if end < len(objects) && c.opts.Pause > 0 {
			select {
			case <-time.After(c.opts.Pause):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	for _, res := range result.Results {
		result.Processed++
		if res.Success {
			result.Successful++
		} else {
			result.Failed++
		}
	}
	logger.Info("Batch %s: processed=%d successful=%d failed=%d",
		result.RunID, result.Processed, result.Successful, result.Failed)
	return result, nil
}

// processObject runs one document through the fetch-chunk-embed-upsert
// pipeline under its own timeout.
func (c *Coordinator) processObject(ctx context.Context, obj core.SourceObject) core.DocumentResult {
	ctx, cancel := context.WithTimeout(ctx, c.opts.DocumentTimeout)
	defer cancel()

	docID := rag.DocumentIDFromKey(obj.Key)
	res := core.DocumentResult{DocumentID: docID, SourceKey: obj.Key}

	body, err := c.source.Fetch(ctx, obj.Key)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	content, err := ReadAllText(body)
	if err != nil {
		res.Error = kberrors.New(kberrors.KindIndexRead, "fetch", err).WithDocument(docID).Error()
		return res
	}

	doc := &core.Document{
		ID:      docID,
		Title:   titleFromKey(obj.Key),
		Content: content,
		Metadata: map[string]interface{}{
			"source_key": obj.Key,
			"file_type":  obj.FileType,
		},
	}

	summary, err := c.indexer.IndexDocument(ctx, doc)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.Success = true
	res.ChunksIndexed = summary.ChunksIndexed
	return res
}

// titleFromKey turns "papers/deep-learning.txt" into "deep-learning".
func titleFromKey(key string) string {
	base := path.Base(key)
	return strings.TrimSuffix(base, path.Ext(base))
}
