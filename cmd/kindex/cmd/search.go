package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentscholar/kindex/internal/ops"
)

var (
	searchQuery    string
	searchSize     int
	searchMinScore float32
	searchFilters  string
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Run a filtered similarity search over indexed chunks",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		p, err := buildPipeline(ctx)
		if err != nil {
			return err
		}
		defer p.close(ctx)

		payload := ops.SearchPayload{
			Query: searchQuery,
			Size:  searchSize,
		}
		if cmd.Flags().Changed("min-score") {
			payload.MinScore = &searchMinScore
		}
		if searchFilters != "" {
			if err := json.Unmarshal([]byte(searchFilters), &payload.Filters); err != nil {
				return fmt.Errorf("failed to parse --filters: %w", err)
			}
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}

		resp := p.router.Execute(ctx, &ops.Request{
			Operation: ops.OpSearch,
			Payload:   raw,
		})
		return printResponse(resp)
	},
}

func init() {
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "query text")
	searchCmd.Flags().IntVarP(&searchSize, "size", "n", 10, "maximum results")
	searchCmd.Flags().Float32Var(&searchMinScore, "min-score", ops.DefaultMinScore, "similarity threshold")
	searchCmd.Flags().StringVar(&searchFilters, "filters", "", "filter spec as a JSON object")
	rootCmd.AddCommand(searchCmd)
}
