package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/spf13/cobra"
)

var modelsCommand = &cobra.Command{
	Use:   "models",
	Short: "List the models served by the provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := []option.RequestOption{
			option.WithAPIKey(cfg.APIKey),
			option.WithBaseURL(modelsBaseURL(cfg.BaseURL)),
		}
		if cfg.Organization != "" {
			opts = append(opts, option.WithOrganization(cfg.Organization))
		}

		c := openai.NewClient(opts...)

		page, err := c.Models.List(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list models: %w", err)
		}

		ids := make([]string, 0, len(page.Data))
		for _, m := range page.Data {
			ids = append(ids, m.ID)
		}

		printModels(cmd.OutOrStdout(), ids, cfg.Model)
		return nil
	},
}

// modelsBaseURL turns a chat completions endpoint back into its API base.
func modelsBaseURL(baseURL string) string {
	base := strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/chat/completions")
	return base + "/"
}

func printModels(w io.Writer, ids []string, current string) {
	slices.Sort(ids)
	for _, id := range ids {
		if id == current {
			fmt.Fprintf(w, "%s %s\n", styleBold.Render(id), styleFaint.Render("(current)"))
			continue
		}
		fmt.Fprintln(w, id)
	}
}

func init() {
	rootCmd.AddCommand(modelsCommand)
}
