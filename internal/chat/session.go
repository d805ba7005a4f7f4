package chat

import (
	"bufio"
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/ximatai/openai"
	"github.com/ximatai/openai/session"
	"golang.org/x/term"
)

// DefaultStoragePath defines the default location of the chat history,
// which is stored as a [pebble]-backed database.
//
// On Unix-like systems, it is set to ~/.openai-cli-chat-pebble-storage-cache,
// and on Windows, it is set to %USERPROFILE%/.openai-cli-chat-pebble-storage-cache.
//
// [pebble]: https://github.com/cockroachdb/pebble
var DefaultStoragePath = cmp.Or(os.Getenv("HOME"), os.Getenv("USERPROFILE")) + "/.openai-cli-chat-pebble-storage-cache"

// DefaultHistorySize is the number of stored exchanges loaded on start.
const DefaultHistorySize = 10

// DefaultSummarizeContextWindowSize is the token count after which the
// conversation is replaced by a summary.
const DefaultSummarizeContextWindowSize = 4096

var (
	styleBold  = lipgloss.NewStyle().Bold(true)
	styleFaint = lipgloss.NewStyle().Faint(true)
)

// CommandFunc defines the function signature for executing a command.
type CommandFunc func(ctx context.Context, s *Session, input string)

// Command represents an abstract command with a name, a matching function, and an execution function.
type Command struct {
	// Name of the command.
	//
	// If Matches is nil, the command is executed when the input matches the name.
	Name string

	// Description of the command.
	Description string

	// Matches is a function that checks if the command matches the input.
	//
	// If Matches is nil, the command is executed when the input matches the name.
	// If Matches is not nil, the command is executed when Matches returns true.
	Matches func(input string) bool

	// Run is the function that executes the command.
	Run CommandFunc
}

// builtinCommands are the built-in commands available in the chat session,
// used for managing the conversation and session state.
var builtinCommands = []Command{
	{
		Name:        "exit",
		Description: "Exit the chat session.",
		// Exiting is a special case, used for documentation.
	},
	{
		Name:        "clear",
		Description: "Clear the terminal screen.",
		Run: func(ctx context.Context, s *Session, input string) {
			s.clearScreen()
		},
	},
	{
		Name:        "erase",
		Description: "Clear the chat history.",
		Run: func(ctx context.Context, s *Session, input string) {
			s.Chat.ClearMessages()
			s.CurrentTokensUsed = 0
			s.OutWriter.WriteString("Chat history cleared.\n")
		},
	},
	{
		Name:        "erase all",
		Description: "Clear the chat history and backend storage.",
		Run: func(ctx context.Context, s *Session, input string) {
			s.OutWriter.WriteString("\nAre you sure you want to clear the chat history? (y/n): ")
			s.OutWriter.Flush()

			confirmation, err := s.Terminal.ReadLine()
			if err != nil {
				s.OutWriter.WriteString(fmt.Sprintf("Error reading confirmation: %s\n", err))
				return
			}

			if strings.ToLower(strings.TrimSpace(confirmation)) != "y" {
				s.OutWriter.WriteString("\nChat history not cleared.\n")
				return
			}

			s.Chat.ClearMessages()
			s.CurrentTokensUsed = 0

			if err := s.Chat.Erase(ctx); err != nil {
				s.OutWriter.WriteString(fmt.Sprintf("Error erasing backend storage: %s\n", err))
				return
			}

			s.OutWriter.WriteString("\nChat history cleared in memory and backend.\n\n")
		},
	},
	{
		Name:        "delete",
		Description: "Delete the last message.",
		Run: func(ctx context.Context, s *Session, input string) {
			s.Chat.PopMessage()
		},
	},
	{
		Name:        "copy",
		Description: "Copy the last message to the clipboard.",
		Run: func(ctx context.Context, s *Session, input string) {
			msgs := s.Chat.Messages()
			if len(msgs) == 0 {
				return
			}
			if err := s.WriteClipboard(msgs[len(msgs)-1].Content); err != nil {
				s.OutWriter.WriteString(fmt.Sprintf("Clipboard error: %s\n", err))
			}
		},
	},
	{
		Name:        "system",
		Description: "Set the system context, e.g. system: you are a translator.",
		Matches: func(input string) bool {
			return strings.HasPrefix(strings.TrimSpace(input), "system:")
		},
		Run: func(ctx context.Context, s *Session, input string) {
			text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(input), "system:"))
			if err := s.Chat.SetSystemMessage(text); err != nil {
				s.OutWriter.WriteString(fmt.Sprintf("Error: %s\n", err))
				return
			}
			s.OutWriter.WriteString("System context updated.\n")
		},
	},
	{
		Name:        "help",
		Description: "Show help for commands.",
		Run: func(ctx context.Context, s *Session, input string) {
			s.ShowHelp()
		},
	},
	{
		Name:        "tokens",
		Description: "Show the number of tokens used.",
		Run: func(ctx context.Context, s *Session, input string) {
			s.OutWriter.WriteString(fmt.Sprintf("Tokens used: %d\n", s.CurrentTokensUsed))
		},
	},
	{
		Name:        "messages",
		Description: "Show the chat messages currently being used with the model.",
		Run: func(ctx context.Context, s *Session, input string) {
			if system, ok := s.Chat.SystemMessage(); ok {
				s.OutWriter.WriteString(fmt.Sprintf("\n\t%s: %s\n", openai.ChatRoleSystem, system))
			}
			for _, msg := range s.Chat.Messages() {
				s.OutWriter.WriteString(fmt.Sprintf("\n\t%s: %s\n", msg.Role, msg.Content))
			}
		},
	},
	{
		Name:        "stream",
		Description: "Toggle streaming replies as they are generated.",
		Run: func(ctx context.Context, s *Session, input string) {
			s.Streaming = !s.Streaming
			if s.Streaming {
				s.OutWriter.WriteString("Streaming enabled.\n")
			} else {
				s.OutWriter.WriteString("Streaming disabled.\n")
			}
		},
	},
	{
		Name: "history",
		Matches: func(input string) bool {
			// Matches "history" or "history <number>".
			switch {
			case strings.TrimSpace(input) == "history":
				return true
			case strings.HasPrefix(strings.TrimSpace(input), "history "):
				parts := strings.Fields(input)
				if len(parts) == 2 {
					_, err := strconv.Atoi(parts[1])
					return err == nil
				}
				return false
			default:
				return false
			}
		},
		Description: "Show the chat message history from the backend storage.",
		Run: func(ctx context.Context, s *Session, input string) {
			numToShow := 10
			if parts := strings.Fields(input); len(parts) == 2 {
				if num, err := strconv.Atoi(parts[1]); err == nil {
					numToShow = num
				}
			}

			if numToShow <= 0 {
				s.OutWriter.WriteString("Invalid number of messages to show.\n")
				return
			}

			entries, err := s.Chat.Exchanges(ctx, numToShow)
			if err != nil {
				s.OutWriter.WriteString(fmt.Sprintf("Error listing entries: %s\n", err))
				return
			}

			for _, entry := range entries {
				for _, msg := range entry.Value.Requests {
					s.OutWriter.WriteString(fmt.Sprintf("\t%s (%s): %s\n\n", msg.Role, entry.Key, msg.Content))
				}
				resp := entry.Value.Response
				s.OutWriter.WriteString(fmt.Sprintf("\t%s (%s): %s\n\n", resp.Role, entry.Key, resp.Content))
				s.OutWriter.WriteString(fmt.Sprintf("\tTokens used: %d\n\n", entry.Value.TotalTokens()))
				s.OutWriter.WriteString("---\n")
			}
		},
	},
}

// Session encapsulates the state and behavior of a CLI chat session.
// It manages terminal I/O and command processing on top of a
// [session.Session], which holds the conversation and its storage.
type Session struct {
	Chat                       *session.Session
	CurrentTokensUsed          int64
	SummarizeContextWindowSize int64
	Streaming                  bool

	// HTTPClient fetches #url: content.
	HTTPClient *http.Client

	ReadClipboard  func() (string, error)
	WriteClipboard func(string) error

	Terminal   *term.Terminal
	OutWriter  *bufio.Writer
	TermWidth  int
	TermHeight int
	Commands   []Command
}

// NewSession creates and initializes a new chat session.
//
// It sets the terminal to raw mode, loads the most recent chat history
// from storage, and registers the default commands.
//
// A restoration function is returned to restore the terminal state on exit.
func NewSession(ctx context.Context, chat *session.Session, r io.Reader, w io.Writer) (*Session, func(), error) {
	var (
		restoreFunc     = func() {} // Default no-op restore function.
		termWidth   int = 80        // Terminal width (default 80).
		termHeight  int = 24        // Terminal height (default 24).
	)

	// If we're running in a terminal, set it to "raw" mode.
	if stdout, ok := w.(*os.File); ok && term.IsTerminal(int(stdout.Fd())) {
		fd := int(stdout.Fd())

		oldState, err := term.MakeRaw(fd)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to set terminal to raw mode: %w", err)
		}

		restoreFunc = func() {
			if err := term.Restore(fd, oldState); err != nil {
				fmt.Fprintf(os.Stderr, "\nfailed to restore terminal: %s\n", err)
			}
		}

		termWidth, termHeight, err = term.GetSize(fd)
		if err != nil {
			restoreFunc()
			return nil, nil, fmt.Errorf("failed to get terminal size while creating new chat session: %w", err)
		}
	}

	termReadWriter := struct {
		io.Reader
		io.Writer
	}{r, w}

	t := term.NewTerminal(termReadWriter, "")
	t.SetSize(termWidth, termHeight)

	cs := &Session{
		Chat:                       chat,
		SummarizeContextWindowSize: DefaultSummarizeContextWindowSize,
		HTTPClient:                 http.DefaultClient,
		ReadClipboard:              readClipboard,
		WriteClipboard:             writeClipboard,
		Terminal:                   t,
		OutWriter:                  bufio.NewWriter(t),
		TermWidth:                  termWidth,
		TermHeight:                 termHeight,
		Commands:                   builtinCommands,
	}

	// Set up tab-completion for common commands.
	t.AutoCompleteCallback = cs.autoComplete

	if err := cs.loadHistory(ctx); err != nil {
		restoreFunc()
		return nil, nil, fmt.Errorf("failed to load chat history: %w", err)
	}

	return cs, restoreFunc, nil
}

func (cs *Session) ShowHelp() {
	cs.OutWriter.WriteString(styleBold.Render("Commands") + " " + styleFaint.Render("(tab complete)") + "\n\n")

	for _, cmd := range cs.Commands {
		cs.OutWriter.WriteString("- " + styleFaint.Render(cmd.Name) + ": " + cmd.Description + "\n")
	}

	cs.OutWriter.WriteString("\nUse '" + styleFaint.Render("<clipboard>") + "' to include clipboard content in a message.\n")
	cs.OutWriter.WriteString("Use '" + styleFaint.Render("#file:path") + "' to include file content in a message.\n")
	cs.OutWriter.WriteString("Use '" + styleFaint.Render("#url:path") + "' to include URL content in a message.\n\n")

	cs.OutWriter.Flush()
}

// Run starts the main loop of the chat session.
func (cs *Session) Run(ctx context.Context) {
	cs.clearScreen()

	// Only shown to a user without any history.
	if len(cs.Chat.Messages()) == 0 {
		cs.OutWriter.WriteString(styleBold.Render("Welcome to the OpenAI CLI Chat Mode!") + "\n\n")
		cs.ShowHelp()
	}

	for {
		done, err := cs.RunOnce(ctx)
		if err != nil {
			cs.OutWriter.WriteString(fmt.Sprintf("Error: %s\n", err))
			cs.OutWriter.Flush()
		}

		if done {
			return
		}
	}
}

func doneWithoutError() (bool, error) {
	return true, nil
}

func nonFatalError(err error) (bool, error) {
	return false, err
}

func fatalError(err error) (bool, error) {
	return true, err
}

func ranSuccessfully() (bool, error) {
	return false, nil
}

// RunOnce reads and handles a single line of input. It reports whether
// the session is done.
func (cs *Session) RunOnce(ctx context.Context) (bool, error) {
	cs.OutWriter.WriteString("‣ ")
	cs.OutWriter.Flush()

	input, err := cs.Terminal.ReadLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return doneWithoutError()
		}
		return fatalError(fmt.Errorf("failed to read input: %w", err))
	}

	trimmed := strings.TrimSpace(input)
	switch trimmed {
	case "exit":
		return doneWithoutError()
	case "":
		return ranSuccessfully()
	}

	if cs.runCommand(ctx, input) {
		return ranSuccessfully()
	}

	expanded, err := cs.expandInput(ctx, input)
	if err != nil {
		return nonFatalError(err)
	}

	if err := cs.chatRequest(ctx, expanded); err != nil {
		return nonFatalError(fmt.Errorf("chat request error: %w", err))
	}

	if err := cs.maybeSummarize(ctx); err != nil {
		return nonFatalError(fmt.Errorf("summarization error: %w", err))
	}

	return ranSuccessfully()
}

// runCommand runs the first command matching the input, reporting whether
// one ran.
func (cs *Session) runCommand(ctx context.Context, input string) bool {
	defer cs.OutWriter.Flush()

	for _, cmd := range cs.Commands {
		if cmd.Run == nil {
			continue
		}
		switch {
		case cmd.Matches == nil:
			if strings.TrimSpace(input) == cmd.Name {
				cmd.Run(ctx, cs, input)
				return true
			}
		case cmd.Matches(input):
			cmd.Run(ctx, cs, input)
			return true
		}
	}

	return false
}

// expandInput replaces #file:path and #url:path tokens with the content
// they point at, and <clipboard> with the clipboard content.
func (cs *Session) expandInput(ctx context.Context, input string) (string, error) {
	input, err := cs.addFiles(input)
	if err != nil {
		return "", fmt.Errorf("error adding files: %w", err)
	}

	input, err = cs.addURLs(ctx, input)
	if err != nil {
		return "", fmt.Errorf("error adding URLs: %w", err)
	}

	if strings.Contains(input, "<clipboard>") {
		clip, err := cs.ReadClipboard()
		if err != nil {
			return "", fmt.Errorf("clipboard read error: %w", err)
		}
		input = strings.ReplaceAll(input, "<clipboard>", clip)
	}

	return input, nil
}

// addFiles replaces the #file:path tokens of the input with the file's contents.
func (cs *Session) addFiles(input string) (string, error) {
	if !strings.Contains(input, "#file:") {
		return input, nil
	}

	for _, field := range strings.Fields(input) {
		filePath, ok := strings.CutPrefix(field, "#file:")
		if !ok {
			continue
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read file %q: %w", filePath, err)
		}

		input = strings.Replace(input, field, string(content), 1)
	}

	return input, nil
}

// addURLs fetches the #url:path tokens of the input and replaces them with
// the response content. URLs without a scheme are fetched over https.
func (cs *Session) addURLs(ctx context.Context, input string) (string, error) {
	if !strings.Contains(input, "#url:") {
		return input, nil
	}

	for _, field := range strings.Fields(input) {
		url, ok := strings.CutPrefix(field, "#url:")
		if !ok {
			continue
		}

		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			url = "https://" + url
		}

		body, err := cs.fetch(ctx, url)
		if err != nil {
			return "", err
		}

		input = strings.Replace(input, field, body, 1)
	}

	return input, nil
}

func (cs *Session) fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request for URL %q: %w", url, err)
	}

	resp, err := cs.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL %q: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("failed to fetch URL %q: unexpected status code: %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body from URL %q: %w", url, err)
	}

	return string(body), nil
}

// chatRequest sends the message and displays the reply, either streamed
// as it arrives or rendered as markdown once complete.
func (cs *Session) chatRequest(ctx context.Context, text string) error {
	req := cs.Chat.Request().AddText(text)

	if cs.Streaming {
		req.Stream(cs.writeChunk)
	}

	reply, err := req.Send(ctx)
	if reply != nil {
		cs.CurrentTokensUsed += reply.Usage().TotalTokens
	}
	if err != nil {
		return err
	}

	if cs.Streaming {
		cs.OutWriter.WriteString("\n\n")
	} else {
		cs.OutWriter.WriteString(renderMarkdown(strings.TrimRight(reply.Content, "\n"), cs.TermWidth))
	}
	cs.OutWriter.Flush()

	return nil
}

func (cs *Session) writeChunk(chunk *openai.AssistantMessage) {
	if chunk.IsReasoning {
		cs.OutWriter.WriteString(styleFaint.Render(chunk.Reasoning))
	} else {
		cs.OutWriter.WriteString(chunk.Content)
	}
	cs.OutWriter.Flush()
}

// maybeSummarize replaces the history with a summary once the token count
// exceeds the context window threshold.
func (cs *Session) maybeSummarize(ctx context.Context) error {
	if cs.CurrentTokensUsed < cmp.Or(cs.SummarizeContextWindowSize, DefaultSummarizeContextWindowSize) {
		return nil
	}

	if len(cs.Chat.Messages()) == 0 {
		return nil
	}

	reply, err := cs.Chat.Request().
		Temporary().
		AddText(strings.Join([]string{
			"You are an expert at summarizing conversations.",
			"Write a detailed recap of the conversation so far, including all important details.",
			"Ignore irrelevant content.",
		}, " ")).
		Send(ctx)
	if err != nil {
		return err
	}

	cs.Chat.SetMessages([]openai.ChatMessage{
		openai.SystemMessage("Summary of previous messages for context: " + reply.Content),
	})
	cs.CurrentTokensUsed = reply.Usage().CompletionTokens

	cs.OutWriter.WriteString("\nChat history summarized.\n")
	cs.OutWriter.Flush()

	return nil
}

// clearScreen clears the terminal.
func (cs *Session) clearScreen() {
	cs.OutWriter.WriteString("\033[2J") // Clear the screen.
	cs.OutWriter.WriteString("\033[H")  // Move cursor to the top-left corner.
	cs.OutWriter.Flush()
}

// loadHistory restores the most recent exchanges from storage.
func (cs *Session) loadHistory(ctx context.Context) error {
	loaded, err := cs.Chat.Load(ctx, DefaultHistorySize)
	if err != nil {
		return err
	}

	for _, e := range loaded {
		cs.CurrentTokensUsed += e.TotalTokens()
	}

	return cs.maybeSummarize(ctx)
}

// autoComplete provides basic tab-completion for common commands.
func (cs *Session) autoComplete(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' {
		return line, pos, false
	}

	for _, cmd := range cs.Commands {
		if strings.HasPrefix(cmd.Name, line) {
			return cmd.Name, len(cmd.Name), true
		}
	}

	return line, pos, false
}
