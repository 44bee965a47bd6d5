package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/agentscholar/kindex/internal/config"
	"github.com/agentscholar/kindex/internal/core"
	"github.com/agentscholar/kindex/internal/embed"
	"github.com/agentscholar/kindex/internal/logger"
	"github.com/agentscholar/kindex/internal/ops"
	"github.com/agentscholar/kindex/internal/rag"
)

var (
	flagDebug  bool
	flagMemory bool
)

var rootCmd = &cobra.Command{
	Use:   "kindex",
	Short: "Document ingestion and vector retrieval pipeline",
	Long: `kindex chunks documents, embeds the chunks and serves them from a
vector index: single-document indexing, filtered similarity search,
document deletion and batch ingestion from object storage.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Init(flagDebug)
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		logger.Error("%v", err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagMemory, "memory", false,
		"run against an in-memory store and mock embedder instead of Milvus")
}

// pipeline bundles the wired store, embedder and indexer for a command run.
type pipeline struct {
	cfg     *config.Config
	store   core.VectorStore
	indexer *rag.DocumentIndexer
	router  *ops.Router
	close   func(ctx context.Context) error
}

// buildPipeline wires the store per the --memory flag. The in-memory variant
// needs no external services and uses the deterministic mock embedder.
func buildPipeline(ctx context.Context) (*pipeline, error) {
	cfg := config.Load()

	if flagMemory {
		embedder := embed.NewMockEmbedder(cfg.EmbeddingDim)
		store := rag.NewMemoryStore(embedder, cfg.EmbeddingDim)
		indexer := rag.NewDocumentIndexer(store, embedder)
		return &pipeline{
			cfg:     cfg,
			store:   store,
			indexer: indexer,
			router:  ops.NewRouter(store, indexer),
			close:   func(context.Context) error { return nil },
		}, nil
	}

	if err := cfg.ValidateIndex(); err != nil {
		return nil, err
	}
	embedder := embed.NewClient(cfg.EmbeddingEndpoint, cfg.EmbeddingAPIKey,
		cfg.EmbeddingModel, cfg.EmbeddingDim)
	store, err := rag.NewMilvusStore(ctx, cfg.MilvusAddress(), embedder,
		cfg.Collection, cfg.EmbeddingDim)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close(ctx)
		return nil, err
	}
	indexer := rag.NewDocumentIndexer(store, embedder)
	return &pipeline{
		cfg:     cfg,
		store:   store,
		indexer: indexer,
		router:  ops.NewRouter(store, indexer),
		close:   store.Close,
	}, nil
}
