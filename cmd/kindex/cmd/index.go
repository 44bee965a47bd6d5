package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentscholar/kindex/internal/ops"
)

var (
	indexFile     string
	indexTitle    string
	indexAuthors  []string
	indexDate     string
	indexDocID    string
	indexMetadata string
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Chunk, embed and index one document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		p, err := buildPipeline(ctx)
		if err != nil {
			return err
		}
		defer p.close(ctx)

		content, err := os.ReadFile(indexFile)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", indexFile, err)
		}

		payload := ops.DocumentPayload{
			DocumentID:      indexDocID,
			Title:           indexTitle,
			Authors:         indexAuthors,
			PublicationDate: indexDate,
			Content:         string(content),
		}
		if indexMetadata != "" {
			if err := json.Unmarshal([]byte(indexMetadata), &payload.Metadata); err != nil {
				return fmt.Errorf("failed to parse --metadata: %w", err)
			}
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}

		resp := p.router.Execute(ctx, &ops.Request{
			Operation: ops.OpIndexDocument,
			Payload:   raw,
		})
		return printResponse(resp)
	},
}

func init() {
	indexCmd.Flags().StringVarP(&indexFile, "file", "f", "", "path to the document content")
	indexCmd.Flags().StringVarP(&indexTitle, "title", "t", "", "document title")
	indexCmd.Flags().StringSliceVar(&indexAuthors, "author", nil, "document author (repeatable)")
	indexCmd.Flags().StringVar(&indexDate, "date", "", "publication date (RFC3339 or YYYY-MM-DD)")
	indexCmd.Flags().StringVar(&indexDocID, "id", "", "document id (derived from title and authors when empty)")
	indexCmd.Flags().StringVar(&indexMetadata, "metadata", "", "extra metadata as a JSON object")
	indexCmd.MarkFlagRequired("file")
	indexCmd.MarkFlagRequired("title")
	rootCmd.AddCommand(indexCmd)
}

// printResponse renders an operation response as indented JSON; error
// responses become command errors so the exit code reflects them.
func printResponse(resp *ops.Response) error {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	if !resp.Success {
		return fmt.Errorf("operation failed: %s", resp.Error)
	}
	return nil
}
