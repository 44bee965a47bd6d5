package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/agentscholar/kindex/internal/ops"
)

var deleteDocID string

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete every chunk of a document from the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		p, err := buildPipeline(ctx)
		if err != nil {
			return err
		}
		defer p.close(ctx)

		raw, err := json.Marshal(ops.DeletePayload{DocumentID: deleteDocID})
		if err != nil {
			return err
		}
		resp := p.router.Execute(ctx, &ops.Request{
			Operation: ops.OpDeleteDocument,
			Payload:   raw,
		})
		return printResponse(resp)
	},
}

func init() {
	deleteCmd.Flags().StringVar(&deleteDocID, "id", "", "document id")
	deleteCmd.MarkFlagRequired("id")
	rootCmd.AddCommand(deleteCmd)
}
