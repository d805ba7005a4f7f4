package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/ximatai/openai"
	"github.com/ximatai/openai/session"
)

var askCommand = &cobra.Command{
	Use:   "ask <prompt>",
	Short: "Ask a single question",
	Long: `Ask a single question and print the reply.

Unless --temporary is set, the question and reply are saved to the chat
history and the recent history is sent along as context.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			system, _    = cmd.Flags().GetString("system")
			stream, _    = cmd.Flags().GetBool("stream")
			temporary, _ = cmd.Flags().GetBool("temporary")
		)

		backend, err := openStorage(temporary)
		if err != nil {
			return err
		}
		defer backend.Close(cmd.Context())

		s := session.Connect(client, cfg.Model,
			session.WithStorage(backend),
			session.WithLogger(logger),
		)

		if _, err := s.Load(cmd.Context(), 10); err != nil {
			return fmt.Errorf("failed to load chat history: %w", err)
		}

		if system != "" {
			if err := s.SetSystemMessage(system); err != nil {
				return err
			}
		}

		return ask(cmd, s, strings.Join(args, " "), stream, temporary)
	},
}

func ask(cmd *cobra.Command, s *session.Session, prompt string, stream, temporary bool) error {
	out := cmd.OutOrStdout()

	req := s.Request().AddText(prompt)
	if temporary {
		req.Temporary()
	}
	if stream {
		req.Stream(func(chunk *openai.AssistantMessage) {
			writeChunk(out, chunk)
		})
	}

	reply, err := req.Send(cmd.Context())
	if err != nil {
		return err
	}

	if stream {
		fmt.Fprintln(out)
		return nil
	}

	if reply.Reasoning != "" {
		fmt.Fprintln(out, styleFaint.Render(reply.Reasoning))
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, reply.Content)

	return nil
}

func writeChunk(w io.Writer, chunk *openai.AssistantMessage) {
	if chunk.IsReasoning {
		fmt.Fprint(w, styleFaint.Render(chunk.Reasoning))
		return
	}
	fmt.Fprint(w, chunk.Content)
}

func init() {
	askCommand.Flags().StringP("system", "s", "", "System message used to set up the assistant")
	askCommand.Flags().Bool("stream", false, "Print the reply as it is generated")
	askCommand.Flags().BoolP("temporary", "t", false, "Do not read or write the chat history")

	rootCmd.AddCommand(askCommand)
}
