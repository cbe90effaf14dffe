package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/lithammer/shortuuid/v4"
	"github.com/raphaelgruber/aiaio-go/internal/client"
	"github.com/raphaelgruber/aiaio-go/internal/stream"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	chatConversation string
	chatSystem       string
	chatFiles        []string
	chatPlain        bool

	regenSystem string
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message and stream the reply",
	Long: `Send a message and stream the reply as it is generated.

Without --conversation a new conversation is started; its id is printed
when the reply ends. Press Ctrl+C once to stop the reply (the partial
answer is kept), twice to abandon it.

Examples:
  aiaio chat "What is the open-circuit voltage of a LiFePO4 cell?"
  aiaio chat "And at 10% state of charge?" --conversation 8f2c...
  aiaio chat "Summarize this" --file notes.pdf --file plot.png
  aiaio chat "Plot sin(x)" --system "You are a plotting assistant" --plain`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

var regenerateCmd = &cobra.Command{
	Use:   "regenerate <conversation-id> <message-id>",
	Short: "Replace an assistant reply with a fresh one",
	Long: `Generate a new reply for an assistant message. The history up to the
message is sent again and the message is overwritten in place.

Examples:
  aiaio regenerate 8f2c... 41d7...
  aiaio regenerate 8f2c... 41d7... --system "Answer in one sentence"`,
	Args: cobra.ExactArgs(2),
	RunE: runRegenerate,
}

func init() {
	chatCmd.Flags().StringVarP(&chatConversation, "conversation", "c", "", "continue an existing conversation")
	chatCmd.Flags().StringVarP(&chatSystem, "system", "s", "", "system prompt (default: the active prompt)")
	chatCmd.Flags().StringSliceVarP(&chatFiles, "file", "f", nil, "attach a file (repeatable)")
	chatCmd.Flags().BoolVar(&chatPlain, "plain", false, "plain output even on a terminal")

	regenerateCmd.Flags().StringVarP(&regenSystem, "system", "s", "", "system prompt (default: the active prompt)")
	regenerateCmd.Flags().BoolVar(&chatPlain, "plain", false, "plain output even on a terminal")
}

func runChat(cmd *cobra.Command, args []string) error {
	req := client.ChatRequest{
		ConversationID: chatConversation,
		Message:        strings.Join(args, " "),
		SystemPrompt:   chatSystem,
		Files:          chatFiles,
	}
	return withControl(background(), func(ctx context.Context, clientID string, stop func() error) error {
		req.ClientID = clientID
		convID, err := streamReply(ctx, stop, func(ctx context.Context, onEvent func(client.Event) error) (string, error) {
			return apiClient.Chat(ctx, req, onEvent)
		})
		if convID != "" && (chatPlain || !isTerminal()) {
			fmt.Fprintf(os.Stderr, "Conversation: %s\n", convID)
		}
		return err
	})
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	req := client.RegenerateRequest{
		ConversationID: args[0],
		MessageID:      args[1],
		SystemPrompt:   regenSystem,
	}
	return withControl(background(), func(ctx context.Context, clientID string, stop func() error) error {
		req.ClientID = clientID
		_, err := streamReply(ctx, stop, func(ctx context.Context, onEvent func(client.Event) error) (string, error) {
			return req.ConversationID, apiClient.Regenerate(ctx, req, onEvent)
		})
		return err
	})
}

// withControl opens the side channel under a fresh client id. When it cannot
// be opened replies still stream but cannot be stopped.
func withControl(ctx context.Context, fn func(ctx context.Context, clientID string, stop func() error) error) error {
	clientID := "cli-" + shortuuid.New()

	ctl, err := apiClient.Connect(ctx, clientID)
	if err != nil {
		warnf("stop is unavailable: %v", err)
		return fn(ctx, clientID, nil)
	}
	defer ctl.Close()
	return fn(ctx, clientID, ctl.Stop)
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func streamReply(ctx context.Context, stop func() error, send sendFunc) (string, error) {
	if isTerminal() && !chatPlain {
		return RunReply(ctx, apiClient.BaseURL(), stop, send)
	}
	return runReplyPlain(ctx, stop, send)
}

// runReplyPlain writes the reply to stdout and everything else to stderr.
// The first interrupt stops the reply, the second cancels the request.
func runReplyPlain(ctx context.Context, stop func() error, send sendFunc) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)

	go func() {
		stopped := false
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if !stopped && stop != nil {
					stopped = true
					fmt.Fprintln(os.Stderr, "\nstopping...")
					if err := stop(); err != nil {
						warnf("stop failed: %v", err)
					}
					continue
				}
				cancel()
				return
			}
		}
	}()

	p := &printer{out: os.Stdout, info: os.Stderr, baseURL: apiClient.BaseURL()}
	convID, err := send(ctx, p.handle)
	if err != nil {
		return convID, err
	}
	return convID, p.finish()
}

// printer renders streamed events as plain text.
type printer struct {
	out, info io.Writer
	baseURL   string

	inReasoning bool
	wroteText   bool
	streamErr   string
}

func (p *printer) handle(ev client.Event) error {
	switch ev.Type {
	case stream.EventContent:
		p.endReasoning()
		fmt.Fprint(p.out, ev.Text())
		p.wroteText = true
	case stream.EventReasoning:
		if !p.inReasoning {
			fmt.Fprint(p.info, "[thinking] ")
			p.inReasoning = true
		}
		fmt.Fprint(p.info, ev.Text())
	case stream.EventError:
		p.streamErr = ev.Text()
	case stream.EventDone:
		p.endReasoning()
	default:
		if note, ok := describeEvent(ev, p.baseURL); ok {
			p.endReasoning()
			fmt.Fprintf(p.info, "• %s\n", note)
		}
	}
	return nil
}

func (p *printer) endReasoning() {
	if p.inReasoning {
		fmt.Fprintln(p.info)
		p.inReasoning = false
	}
}

func (p *printer) finish() error {
	if p.wroteText {
		fmt.Fprintln(p.out)
	}
	if p.streamErr != "" {
		return fmt.Errorf("%s", p.streamErr)
	}
	return nil
}

// describeEvent summarizes context, image and tool events in one line.
func describeEvent(ev client.Event, baseURL string) (string, bool) {
	switch ev.Type {
	case stream.EventContext:
		snippets, err := ev.Snippets()
		if err != nil || len(snippets) == 0 {
			return "", false
		}
		seen := map[string]bool{}
		var sources []string
		for _, s := range snippets {
			if !seen[s.Source] {
				seen[s.Source] = true
				sources = append(sources, s.Source)
			}
		}
		sort.Strings(sources)
		return fmt.Sprintf("Context: %d passages from %s", len(snippets), strings.Join(sources, ", ")), true

	case stream.EventImage:
		img, err := ev.Image()
		if err != nil {
			return "", false
		}
		return fmt.Sprintf("Image from %s: %s%s", img.ToolName, baseURL, img.URLPath), true

	case stream.EventToolContext:
		tc, err := ev.ToolContext()
		if err != nil {
			return "", false
		}
		return fmt.Sprintf("Tool %s%s: %s", tc.ToolName, formatArgs(tc.Arguments), truncate(oneLine(tc.Result), 120)), true
	}
	return "", false
}

func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "()"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
