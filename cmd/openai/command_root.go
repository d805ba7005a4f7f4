package main

import "github.com/spf13/cobra"

var rootCmd = &cobra.Command{
	Use:   "openai",
	Short: "Chat with OpenAI compatible models",
	Long: `Chat with any model served behind an OpenAI compatible chat completions API.

Configuration is read from the environment:

  OPENAI_API_KEY       API key (required)
  OPENAI_BASE_URL      API base or full chat completions URL
  OPENAI_MODEL         model name (default gpt-4o)
  OPENAI_ORGANIZATION  organization header
  OPENAI_CHAT_STORAGE  chat history directory
  OPENAI_DEBUG         log requests to stderr`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}

		logger = newLogger(cfg)
		client = newClient(cfg, logger)

		if model, _ := cmd.Flags().GetString("model"); model != "" {
			cfg.Model = model
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd, false)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("model", "m", "", "Model to use, overriding OPENAI_MODEL")
}
