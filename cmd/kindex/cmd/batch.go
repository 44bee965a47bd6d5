package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentscholar/kindex/internal/batch"
)

var (
	batchPrefix string
	batchMax    int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Ingest documents from object storage in paced parallel waves",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		p, err := buildPipeline(ctx)
		if err != nil {
			return err
		}
		defer p.close(ctx)

		if err := p.cfg.ValidateStorage(); err != nil {
			return err
		}
		source, err := batch.NewObjectSource(batch.ObjectSourceConfig{
			Endpoint:  p.cfg.StorageEndpoint,
			AccessKey: p.cfg.StorageAccessKey,
			SecretKey: p.cfg.StorageSecretKey,
			Bucket:    p.cfg.StorageBucket,
			UseSSL:    p.cfg.StorageUseSSL,
		})
		if err != nil {
			return err
		}

		maxDocs := batchMax
		if !cmd.Flags().Changed("max") {
			maxDocs = p.cfg.MaxDocuments
		}
		coord := batch.NewCoordinator(source, p.indexer, batch.Options{
			Prefix:          batchPrefix,
			MaxDocuments:    maxDocs,
			Workers:         p.cfg.Workers,
			DocumentTimeout: p.cfg.DocumentTimeout,
			Pause:           p.cfg.BatchPause,
		})
		result, err := coord.Run(ctx)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchPrefix, "prefix", "", "only ingest keys under this prefix")
	batchCmd.Flags().IntVar(&batchMax, "max", 0, "stop after this many documents (0 = no limit)")
	rootCmd.AddCommand(batchCmd)
}
