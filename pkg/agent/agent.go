package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/sawane/loom/internal/observability"
	"github.com/sawane/loom/internal/tracing"
	"github.com/sawane/loom/pkg/commandqueue"
	"github.com/sawane/loom/pkg/convstore"
	"github.com/sawane/loom/pkg/provider"
	"github.com/sawane/loom/pkg/toolexec"
)

// Agent executes chat turns against one provider/model pairing.
type Agent struct {
	store    convstore.Store
	client   provider.Client
	executor *toolexec.Executor
	queue    *commandqueue.CommandQueue
	options  Options
	logger   zerolog.Logger
}

// Config holds agent dependencies. Store, Client and Queue are required;
// Executor may be nil when tools are disabled.
type Config struct {
	Store    convstore.Store
	Client   provider.Client
	Executor *toolexec.Executor
	Queue    *commandqueue.CommandQueue
	Options  Options
	Logger   zerolog.Logger
}

// New creates an agent.
func New(cfg Config) (*Agent, error) {
	observability.EnsureRegistered()

	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("provider client is required")
	}
	if cfg.Queue == nil {
		return nil, fmt.Errorf("command queue is required")
	}
	if cfg.Options.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	if cfg.Options.Temperature < 0 || cfg.Options.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if cfg.Options.ToolsEnabled && cfg.Executor == nil {
		return nil, fmt.Errorf("tool executor is required when tools are enabled")
	}

	opts := cfg.Options
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = defaultSystemPrompt
	}

	return &Agent{
		store:    cfg.Store,
		client:   cfg.Client,
		executor: cfg.Executor,
		queue:    cfg.Queue,
		options:  opts,
		logger:   cfg.Logger,
	}, nil
}

// Chat runs one blocking turn. The conversation is created when
// params.ConversationID is empty; the turn itself executes inside the
// conversation's queue lane, so concurrent turns on the same conversation
// run one at a time.
func (a *Agent) Chat(ctx context.Context, params Params) (*Turn, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}

	conv, err := a.resolveConversation(ctx, params)
	if err != nil {
		return nil, err
	}

	ctx = tracing.PropagateToTurn(ctx, conv.ID)
	lane := commandqueue.ConversationLane(conv.ID)

	result, err := a.queue.EnqueueIdempotent(ctx, lane, params.RequestID, func(taskCtx context.Context) (interface{}, error) {
		return a.runTurn(taskCtx, conv, params, nil)
	}, nil)
	if err != nil {
		return nil, err
	}
	return result.(*Turn), nil
}

// ChatStream runs one turn and surfaces it as a finite event sequence:
// zero or more status events, then zero or more delta events whose
// concatenation equals the final assistant content, then exactly one final
// event. The channel closing without a final event means the turn failed;
// side effects persisted before the failure stay durable.
func (a *Agent) ChatStream(ctx context.Context, params Params) (<-chan Event, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}

	conv, err := a.resolveConversation(ctx, params)
	if err != nil {
		return nil, err
	}

	turnCtx := tracing.PropagateToTurn(ctx, conv.ID)
	lane := commandqueue.ConversationLane(conv.ID)
	events := make(chan Event, 16)

	emit := func(ev Event) {
		select {
		case events <- ev:
		case <-turnCtx.Done():
		}
	}

	go func() {
		defer close(events)
		_, err := a.queue.EnqueueWithContext(turnCtx, lane, func(taskCtx context.Context) (interface{}, error) {
			return a.runTurn(taskCtx, conv, params, emit)
		}, nil)
		if err != nil {
			logger := tracing.LoggerFromContext(turnCtx, a.logger)
			logger.Error().Err(err).Str("conversation_id", conv.ID).Msg("Streaming turn failed")
		}
	}()

	return events, nil
}

func validateParams(params Params) error {
	if strings.TrimSpace(params.Input) == "" {
		return fmt.Errorf("input cannot be empty")
	}
	return nil
}

// resolveConversation loads the target conversation or creates one,
// defaulting the title from the first input when the caller supplied none.
func (a *Agent) resolveConversation(ctx context.Context, params Params) (*convstore.Conversation, error) {
	if params.ConversationID != "" {
		return a.store.GetConversation(ctx, params.ConversationID)
	}

	meta := map[string]interface{}{}
	for k, v := range params.Meta {
		meta[k] = v
	}
	if _, ok := meta[convstore.MetaKeyTitle]; !ok {
		meta[convstore.MetaKeyTitle] = titleFromInput(params.Input)
	}
	meta[convstore.MetaKeyProvider] = a.client.Name()
	meta[convstore.MetaKeyModel] = a.options.Model
	if a.options.ProjectRoot != "" {
		meta[convstore.MetaKeyProjectRoot] = a.options.ProjectRoot
	}

	return a.store.CreateConversation(ctx, defaultAgentType, meta)
}

func titleFromInput(input string) string {
	title := strings.TrimSpace(input)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	runes := []rune(title)
	if len(runes) > titleMaxRunes {
		title = string(runes[:titleMaxRunes]) + "..."
	}
	return title
}

// runTurn executes the turn body inside the conversation lane. When emit is
// non-nil the turn is streaming: status events are emitted around tool
// dispatch, deltas for the terminal model call, and a final event after the
// assistant message is persisted.
func (a *Agent) runTurn(ctx context.Context, conv *convstore.Conversation, params Params, emit func(Event)) (*Turn, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(
		ctx,
		"loom.agent",
		"agent.turn",
		attribute.String("conversation_id", conv.ID),
		attribute.String("provider", a.client.Name()),
		attribute.String("model", a.options.Model),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, a.logger).With().Str("conversation_id", conv.ID).Logger()

	fail := func(steps int, err error) (*Turn, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		observability.RecordTurn(a.client.Name(), time.Since(start), steps, false)
		return nil, err
	}

	existing, err := a.store.ListMessages(ctx, conv.ID)
	if err != nil {
		return fail(0, fmt.Errorf("failed to load messages: %w", err))
	}

	anchorID, err := resolveAnchor(existing, params.FocusMessageID)
	if err != nil {
		return fail(0, err)
	}

	userMsg, err := a.store.AppendMessage(ctx, conv.ID, convstore.RoleUser, params.Input, anchorID, params.Meta)
	if err != nil {
		return fail(0, fmt.Errorf("failed to save user message: %w", err))
	}

	assistantID, err := convstore.NewMessageID()
	if err != nil {
		return fail(0, err)
	}

	stamp := func(ev Event) {
		if emit == nil {
			return
		}
		ev.ConversationID = conv.ID
		ev.UserMessageID = userMsg.ID
		ev.AssistantMessageID = assistantID
		emit(ev)
	}

	history := buildHistory(existing, userMsg)
	outcome, err := a.runToolLoop(ctx, logger, conv, history, emit != nil, stamp)
	if err != nil {
		logger.Error().Err(err).Msg("Turn failed; user message retained")
		return fail(outcome.steps, err)
	}

	meta := map[string]interface{}{
		convstore.MetaKeyUsage:    outcome.usage,
		convstore.MetaKeyProvider: a.client.Name(),
		convstore.MetaKeyModel:    a.options.Model,
	}
	if len(outcome.toolCalls) > 0 {
		meta[convstore.MetaKeyToolCalls] = outcome.toolCalls
	}
	if outcome.truncated {
		meta[convstore.MetaKeyTruncated] = true
	}

	assistantMsg, err := a.store.AppendMessageWithID(ctx, conv.ID, assistantID, convstore.RoleAssistant, outcome.content, userMsg.ID, meta)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to persist assistant message")
		return fail(outcome.steps, fmt.Errorf("failed to save assistant message: %w", err))
	}

	if outcome.truncated {
		observability.RecordTurnTruncated()
	}
	observability.RecordTurn(a.client.Name(), time.Since(start), outcome.steps, true)

	updated, err := a.store.GetConversation(ctx, conv.ID)
	if err != nil {
		updated = conv
	}

	// Flush buffered deltas only now that the message is durable, then the
	// final event. Status events have all been emitted by this point, so
	// the status, delta, final ordering holds.
	for _, text := range outcome.deltas {
		stamp(Event{Kind: EventDelta, Delta: text})
	}
	stamp(Event{Kind: EventFinal, Message: assistantMsg, Usage: outcome.usage})

	logger.Info().
		Int("steps", outcome.steps).
		Int("tool_calls", len(outcome.toolCalls)).
		Bool("truncated", outcome.truncated).
		Dur("duration", time.Since(start)).
		Msg("Turn completed")

	return &Turn{
		Conversation:     updated,
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
	}, nil
}

// resolveAnchor picks the message the new user turn attaches under:
// the focus message when given, else the latest message, else the root
// position of an empty conversation.
func resolveAnchor(messages []*convstore.Message, focusID string) (string, error) {
	if focusID == "" {
		if len(messages) == 0 {
			return "", nil
		}
		return messages[len(messages)-1].ID, nil
	}
	for _, msg := range messages {
		if msg.ID == focusID {
			return focusID, nil
		}
	}
	return "", fmt.Errorf("focus message %s: %w", focusID, convstore.ErrNotFound)
}

// buildHistory reconstructs the linear prompt context by walking parent
// links from the new user message to the root. A fork therefore sees only
// its own ancestry, never sibling branches.
func buildHistory(existing []*convstore.Message, userMsg *convstore.Message) []provider.Message {
	byID := make(map[string]*convstore.Message, len(existing))
	for _, msg := range existing {
		byID[msg.ID] = msg
	}

	var chain []*convstore.Message
	for cur := userMsg; cur != nil; cur = byID[cur.ParentID] {
		chain = append(chain, cur)
		if cur.ParentID == "" {
			break
		}
	}

	history := make([]provider.Message, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		history = append(history, provider.Message{
			Role:    string(chain[i].Role),
			Content: chain[i].Content,
		})
	}
	return history
}

// turnOutcome is what the tool loop hands back for persistence.
type turnOutcome struct {
	content   string
	usage     provider.Usage
	toolCalls []provider.ToolCall
	truncated bool
	steps     int
	deltas    []string
}

// runToolLoop alternates model calls and tool dispatch until the model
// answers without tool calls or the step ceiling is hit. Tool invocations
// run sequentially in the model's requested order; an unknown tool fails
// the turn, while invalid arguments and handler errors are fed back as
// error tool-results so the model can self-correct.
func (a *Agent) runToolLoop(ctx context.Context, logger zerolog.Logger, conv *convstore.Conversation, history []provider.Message, stream bool, stamp func(Event)) (turnOutcome, error) {
	var tools []provider.ToolSpec
	if a.options.ToolsEnabled && a.executor != nil {
		tools = a.executor.Specs()
	}

	outcome := turnOutcome{}
	var lastContent string
	var lastDeltas []string

	for step := 0; step < a.options.MaxSteps; step++ {
		outcome.steps = step + 1

		select {
		case <-ctx.Done():
			return outcome, ctx.Err()
		default:
		}

		completion, deltas, err := a.modelCall(ctx, history, tools, stream)
		if err != nil {
			return outcome, &provider.Error{Provider: a.client.Name(), Err: err}
		}
		outcome.usage.Add(completion.Usage)

		if len(completion.ToolCalls) == 0 {
			outcome.content = completion.Content
			outcome.deltas = deltas
			return outcome, nil
		}

		lastContent = completion.Content
		lastDeltas = deltas
		history = append(history, provider.Message{
			Role:      "assistant",
			Content:   completion.Content,
			ToolCalls: completion.ToolCalls,
		})

		for _, call := range completion.ToolCalls {
			if a.executor == nil {
				return outcome, fmt.Errorf("%w: %s", toolexec.ErrUnknownTool, call.Name)
			}
			stamp(Event{Kind: EventStatus, Status: fmt.Sprintf("running tool %s", call.Name)})

			result, err := a.executor.Execute(ctx, call.Name, call.Parameters, toolexec.ExecContext{
				ConversationID: conv.ID,
				ProjectRoot:    a.options.ProjectRoot,
			})
			if errors.Is(err, toolexec.ErrUnknownTool) {
				stamp(Event{Kind: EventStatus, Status: fmt.Sprintf("tool %s failed", call.Name)})
				return outcome, err
			}

			content := ""
			isErr := false
			switch {
			case err != nil:
				content = err.Error()
				isErr = true
			default:
				content = result.Output
			}

			history = append(history, provider.Message{
				Role:       "tool",
				Content:    content,
				ToolCallID: call.ID,
				IsError:    isErr,
			})

			if isErr {
				logger.Warn().Str("tool", call.Name).Err(err).Msg("Tool result fed back as error")
				stamp(Event{Kind: EventStatus, Status: fmt.Sprintf("tool %s failed", call.Name)})
			} else {
				stamp(Event{Kind: EventStatus, Status: fmt.Sprintf("finished tool %s", call.Name)})
			}
		}

		outcome.toolCalls = append(outcome.toolCalls, completion.ToolCalls...)
	}

	// Step ceiling hit: finalize with whatever the model last produced
	// rather than failing, preserving user-visible progress.
	logger.Warn().Int("max_steps", a.options.MaxSteps).Msg("Step ceiling reached, truncating turn")
	outcome.content = lastContent
	outcome.deltas = lastDeltas
	outcome.truncated = true
	return outcome, nil
}

// modelCall makes one provider call. Streaming turns use the streaming
// variant and buffer the chunks; the buffer is only surfaced as delta
// events when its completion turns out to be the terminal one, which keeps
// the delta concatenation equal to the final content.
func (a *Agent) modelCall(ctx context.Context, history []provider.Message, tools []provider.ToolSpec, stream bool) (*provider.Completion, []string, error) {
	request := provider.Request{
		Model:        a.options.Model,
		Messages:     history,
		Tools:        tools,
		Temperature:  a.options.Temperature,
		MaxTokens:    a.options.MaxTokens,
		SystemPrompt: a.options.SystemPrompt,
	}

	if !stream {
		completion, err := a.client.Complete(ctx, request)
		return completion, nil, err
	}

	var chunks []string
	completion, err := a.client.CompleteStream(ctx, request, func(chunk provider.Chunk) {
		if chunk.Text != "" {
			chunks = append(chunks, chunk.Text)
		}
	})
	return completion, chunks, err
}
