// Package chat drives streamed chat turns: history assembly, the provider
// stream, tool dispatch, cancellation and persistence.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/raphaelgruber/aiaio-go/internal/db"
	"github.com/raphaelgruber/aiaio-go/internal/executor"
	"github.com/raphaelgruber/aiaio-go/internal/generation"
	"github.com/raphaelgruber/aiaio-go/internal/llm"
	"github.com/raphaelgruber/aiaio-go/internal/metrics"
	"github.com/raphaelgruber/aiaio-go/internal/models"
	"github.com/raphaelgruber/aiaio-go/internal/provider"
	"github.com/raphaelgruber/aiaio-go/internal/stream"
	"github.com/raphaelgruber/aiaio-go/internal/vectorstore"
)

// InterruptedMarker is appended to the stored content of a turn that was
// stopped, disconnected or timed out.
const InterruptedMarker = " [interrupted]"

// Broadcast event types sent over the side channel.
const (
	BroadcastMessageAdded        = "message_added"
	BroadcastSummaryUpdated      = "summary_updated"
	BroadcastConversationDeleted = "conversation_deleted"
)

// Broadcast is a side-channel notification.
type Broadcast struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversation_id"`
	Summary        string `json:"summary,omitempty"`
}

// Store is the persistence the orchestrator needs.
type Store interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	AppendMessage(ctx context.Context, msg db.NewMessage) (string, error)
	History(ctx context.Context, conversationID string) ([]models.Message, error)
	HistoryBefore(ctx context.Context, conversationID, messageID string) ([]models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	EditMessage(ctx context.Context, id, content string) (bool, error)
	UpdateSummary(ctx context.Context, conversationID, summary string) error
	DefaultSettings(ctx context.Context) (*models.Settings, error)
	ActivePrompt(ctx context.Context) (*models.SystemPrompt, error)
	GetPromptByName(ctx context.Context, name string) (*models.SystemPrompt, error)
}

// Retriever finds document snippets relevant to a message.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]vectorstore.Hit, error)
}

// Deps are the orchestrator's collaborators. Tools, Retriever, Summarizers
// and Metrics are optional.
type Deps struct {
	Store       Store
	Registry    *generation.Registry
	Providers   provider.Factory
	Summarizers llm.GeneratorFactory
	Tools       executor.Executor
	Retriever   Retriever
	Metrics     *metrics.Collector
	Logger      *slog.Logger
}

// Options tune turn behaviour.
type Options struct {
	// ImagesDir receives images returned by tools.
	ImagesDir string
	// TurnTimeout bounds provider iteration; zero disables it.
	TurnTimeout time.Duration
	// MaxToolRounds caps tool dispatch rounds per turn.
	MaxToolRounds int
	// ResendTools sends the tool manifest on every provider call instead
	// of only the first.
	ResendTools bool
	// ToolConcurrency bounds parallel tool calls within one round.
	ToolConcurrency int
	// ContextResults is how many snippets retrieval adds.
	ContextResults int
}

func (o Options) withDefaults() Options {
	if o.MaxToolRounds <= 0 {
		o.MaxToolRounds = 5
	}
	if o.ToolConcurrency <= 0 {
		o.ToolConcurrency = 4
	}
	if o.ContextResults <= 0 {
		o.ContextResults = 3
	}
	if o.ImagesDir == "" {
		o.ImagesDir = "images"
	}
	return o
}

// Orchestrator runs chat turns.
type Orchestrator struct {
	store       Store
	registry    *generation.Registry
	providers   provider.Factory
	summarizers llm.GeneratorFactory
	tools       executor.Executor
	retriever   Retriever
	metrics     *metrics.Collector
	logger      *slog.Logger
	opts        Options
}

// New creates an orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.NewCollector()
	}
	return &Orchestrator{
		store:       deps.Store,
		registry:    deps.Registry,
		providers:   deps.Providers,
		summarizers: deps.Summarizers,
		tools:       deps.Tools,
		retriever:   deps.Retriever,
		metrics:     m,
		logger:      logger,
		opts:        opts.withDefaults(),
	}
}

// TurnRequest is one user message to answer.
type TurnRequest struct {
	ConversationID string
	ClientID       string
	Message        string
	// SystemPrompt falls back to the active prompt when empty.
	SystemPrompt string
	Attachments  []models.NewAttachment
}

// RegenerateRequest replaces an existing reply with a fresh one.
type RegenerateRequest struct {
	ConversationID string
	MessageID      string
	ClientID       string
	SystemPrompt   string
}

// HandleTurn persists the user message and streams the reply to em.
//
// Errors returned before anything is emitted (unknown conversation, no
// default settings, provider setup) leave the store untouched. Once
// streaming starts, failures are reported as an error event followed by
// done, and HandleTurn returns nil.
func (o *Orchestrator) HandleTurn(ctx context.Context, req TurnRequest, em stream.Emitter) error {
	if _, err := o.store.GetConversation(ctx, req.ConversationID); err != nil {
		return err
	}
	settings, prov, err := o.setup(ctx)
	if err != nil {
		return err
	}
	systemPrompt, err := o.systemPrompt(ctx, req.SystemPrompt)
	if err != nil {
		return err
	}

	history, err := o.store.History(ctx, req.ConversationID)
	if err != nil {
		return err
	}
	if models.LastSystemContent(history) != systemPrompt {
		if _, err := o.store.AppendMessage(ctx, db.NewMessage{
			ConversationID: req.ConversationID,
			Role:           models.RoleSystem,
			Content:        systemPrompt,
		}); err != nil {
			return err
		}
	}
	if _, err := o.store.AppendMessage(ctx, db.NewMessage{
		ConversationID: req.ConversationID,
		Role:           models.RoleUser,
		Content:        req.Message,
		Attachments:    req.Attachments,
	}); err != nil {
		return err
	}
	history, err = o.store.History(ctx, req.ConversationID)
	if err != nil {
		return err
	}

	t := o.newTurn(req.ConversationID, req.ClientID, settings, prov, em)
	t.history = history
	t.query = req.Message
	if len(req.Attachments) > 0 {
		t.preface = acknowledgement(req.Attachments)
	}
	t.persist = func(ctx context.Context, content string) error {
		_, err := o.store.AppendMessage(ctx, db.NewMessage{
			ConversationID: req.ConversationID,
			Role:           models.RoleAssistant,
			Content:        content,
		})
		return err
	}
	t.afterPersist = func(ctx context.Context, content string) {
		final := append(slices.Clip(history), models.Message{Role: models.RoleAssistant, Content: content})
		if isFirstExchange(final) {
			o.summarize(ctx, req.ConversationID, settings, history)
		}
	}

	o.run(ctx, t)
	return nil
}

// Regenerate streams a new reply for the context before messageID and
// overwrites that message's content with it.
func (o *Orchestrator) Regenerate(ctx context.Context, req RegenerateRequest, em stream.Emitter) error {
	target, err := o.store.GetMessage(ctx, req.MessageID)
	if err != nil {
		return err
	}
	if target.Role == models.RoleSystem {
		return fmt.Errorf("%w: system messages cannot be regenerated", db.ErrPermissionDenied)
	}
	history, err := o.store.HistoryBefore(ctx, req.ConversationID, req.MessageID)
	if err != nil {
		return err
	}
	if len(history) == 0 {
		return fmt.Errorf("%w: no conversation history before message %s", db.ErrNotFound, req.MessageID)
	}

	settings, prov, err := o.setup(ctx)
	if err != nil {
		return err
	}
	systemPrompt, err := o.systemPrompt(ctx, req.SystemPrompt)
	if err != nil {
		return err
	}
	if models.LastSystemContent(history) != systemPrompt {
		if _, err := o.store.AppendMessage(ctx, db.NewMessage{
			ConversationID: req.ConversationID,
			Role:           models.RoleSystem,
			Content:        systemPrompt,
		}); err != nil {
			return err
		}
		history = append(history, models.Message{Role: models.RoleSystem, Content: systemPrompt})
	}

	t := o.newTurn(req.ConversationID, req.ClientID, settings, prov, em)
	t.history = history
	t.query = lastUserContent(history)
	t.persist = func(ctx context.Context, content string) error {
		ok, err := o.store.EditMessage(ctx, req.MessageID, content)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: message %s", db.ErrNotFound, req.MessageID)
		}
		return nil
	}

	o.run(ctx, t)
	return nil
}

func (o *Orchestrator) setup(ctx context.Context) (models.Settings, provider.Provider, error) {
	s, err := o.store.DefaultSettings(ctx)
	if err != nil {
		return models.Settings{}, nil, fmt.Errorf("load default settings: %w", err)
	}
	prov, err := o.providers(ctx, *s)
	if err != nil {
		return models.Settings{}, nil, fmt.Errorf("create provider: %w", err)
	}
	return *s, prov, nil
}

func (o *Orchestrator) systemPrompt(ctx context.Context, requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	p, err := o.store.ActivePrompt(ctx)
	if err != nil {
		return "", fmt.Errorf("load active prompt: %w", err)
	}
	return p.Text, nil
}

// run executes a prepared turn. Clients without a live side-channel
// registration get one for the duration of the turn, otherwise the
// registry would stop them before the first delta.
func (o *Orchestrator) run(ctx context.Context, t *turn) {
	if t.clientID == "" {
		t.clientID = "http-" + shortuuid.New()
	}
	if !o.registry.IsRegistered(t.clientID) {
		o.registry.Register(t.clientID, nil)
		defer o.registry.Release(t.clientID, nil)
	}

	t.reqCtx = ctx
	t.monitor = NewMonitor(o.registry, t.clientID)
	stop := t.monitor.Watch(ctx)
	defer stop()

	turnCtx := ctx
	if o.opts.TurnTimeout > 0 {
		var cancel context.CancelFunc
		turnCtx, cancel = context.WithTimeout(ctx, o.opts.TurnTimeout)
		defer cancel()
	}

	o.metrics.TurnStarted()
	o.logger.Info("turn started",
		"conversation_id", t.conversationID,
		"client_id", t.clientID,
		"provider", t.provider.Name(),
		"model", t.settings.ModelName)

	t.run(turnCtx)
}

func acknowledgement(atts []models.NewAttachment) string {
	names := make([]string, len(atts))
	for i, a := range atts {
		names[i] = "'" + a.FileName + "'"
	}
	return "I received your message and the following files: " + strings.Join(names, ", ") + "\n"
}

func lastUserContent(history []models.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleUser {
			return history[i].Content
		}
	}
	return ""
}

// isFirstExchange reports whether the non-system history is exactly one
// user message followed by one assistant reply.
func isFirstExchange(history []models.Message) bool {
	var roles []models.Role
	for _, m := range history {
		if m.Role != models.RoleSystem {
			roles = append(roles, m.Role)
		}
	}
	return len(roles) == 2 && roles[0] == models.RoleUser && roles[1] == models.RoleAssistant
}

// summarize stores and broadcasts a short summary. Failures are logged
// and never reach the turn.
func (o *Orchestrator) summarize(ctx context.Context, conversationID string, s models.Settings, history []models.Message) {
	if o.summarizers == nil {
		return
	}
	logger := o.logger.With("conversation_id", conversationID)

	prompt := models.SummaryPrompt
	if p, err := o.store.GetPromptByName(ctx, models.PromptSummary); err == nil {
		prompt = p.Text
	} else if !errors.Is(err, db.ErrNotFound) {
		logger.Warn("load summary prompt failed", "error", err)
	}

	gen, err := o.summarizers(ctx, s)
	if err != nil {
		logger.Warn("create summarizer failed", "error", err)
		return
	}
	summary, err := llm.Summarize(ctx, gen, prompt, models.UserContents(history))
	if err != nil {
		logger.Warn("summarization failed", "error", llm.Classify(err))
		return
	}
	summary = strings.TrimSpace(summary)
	if err := o.store.UpdateSummary(ctx, conversationID, summary); err != nil {
		logger.Warn("store summary failed", "error", err)
		return
	}

	logger.Info("conversation summarized", "summary", summary)
	o.registry.Broadcast(Broadcast{Type: BroadcastSummaryUpdated, ConversationID: conversationID, Summary: summary})
}
