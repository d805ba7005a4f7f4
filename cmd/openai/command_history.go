package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/ximatai/openai/session"
	"github.com/ximatai/openai/storage"
)

var historyCommand = &cobra.Command{
	Use:   "history",
	Short: "Show the stored chat history",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("number")

		backend, err := openStorage(false)
		if err != nil {
			return err
		}
		defer backend.Close(cmd.Context())

		s := session.Connect(client, cfg.Model, session.WithStorage(backend), session.WithLogger(logger))

		entries, err := s.Exchanges(cmd.Context(), n)
		if err != nil {
			return err
		}

		printHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}

func printHistory(w io.Writer, entries []storage.Entry[string, session.Exchange]) {
	if len(entries) == 0 {
		fmt.Fprintln(w, styleFaint.Render("No chat history."))
		return
	}

	for _, entry := range entries {
		e := entry.Value

		fmt.Fprintf(w, "%s %s\n", styleBold.Render(e.CreatedAt.Local().Format("2006-01-02 15:04:05")), styleFaint.Render(entry.Key))
		for _, msg := range e.Requests {
			fmt.Fprintf(w, "  %s: %s\n", msg.Role, msg.Content)
		}
		fmt.Fprintf(w, "  %s: %s\n", e.Response.Role, e.Response.Content)
		fmt.Fprintf(w, "  %s %s\n\n", styleFaint.Render("tokens:"), numberColor.Render(fmt.Sprint(e.TotalTokens())))
	}
}

func init() {
	historyCommand.Flags().IntP("number", "n", 10, "Number of exchanges to show, zero for all")

	rootCmd.AddCommand(historyCommand)
}
