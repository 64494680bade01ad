package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/qmuntal/stateless"

	"github.com/comigor/botdesk/internal/logger"
	"github.com/comigor/botdesk/internal/metrics"
	"github.com/comigor/botdesk/internal/prompt"
	"github.com/comigor/botdesk/internal/store"
)

// FSM states
type State string

const (
	StateIdle            State = "Idle"
	StateValidating      State = "Validating"
	StateBotLookup       State = "BotLookup"
	StateContextLoad     State = "ContextLoad"
	StateHistoryPersist  State = "HistoryPersist"
	StateGenerating      State = "Generating"
	StateResponsePersist State = "ResponsePersist"
	StateDone            State = "Done"    // Terminal: successful completion
	StateErrored         State = "Errored" // Terminal: error state
)

// FSM triggers
type Trigger string

const (
	TriggerStart           Trigger = "Start"
	TriggerValidated       Trigger = "Validated"
	TriggerBotFound        Trigger = "BotFound"
	TriggerPersistHistory  Trigger = "PersistHistory"
	TriggerGenerate        Trigger = "Generate"
	TriggerPersistResponse Trigger = "PersistResponse"
	TriggerFinish          Trigger = "Finish"
	TriggerFail            Trigger = "Fail"
)

// Store is the persistence the chat flow needs.
type Store interface {
	GetBot(ctx context.Context, botID string) (*store.Bot, error)
	GetDocuments(ctx context.Context, botID string) ([]string, error)
	EnsureConversation(ctx context.Context, chatID, botID string) error
	AppendMessage(ctx context.Context, conversationID string, role prompt.Role, content string) (string, error)
}

// Relay produces the model answer for an assembled prompt.
type Relay interface {
	Complete(ctx context.Context, messages []prompt.Message) (string, error)
	Stream(ctx context.Context, messages []prompt.Message, onChunk func(string) error) error
}

// Emitter receives streamed output. Open is called once, right before the
// first provider call.
type Emitter interface {
	Open() error
	Emit(chunk string) error
}

// Request is the body of a chat call.
type Request struct {
	BotID    string           `json:"botId"`
	ChatID   string           `json:"chatId,omitempty"`
	Messages []prompt.Message `json:"messages"`
}

// Result describes a completed chat request.
type Result struct {
	// Reply is the full assistant text. In streaming mode it has already been
	// emitted chunk by chunk.
	Reply              string
	Streamed           bool
	UserMessageID      string
	AssistantMessageID string
}

// Service orchestrates one chat request: validate, load bot and documents,
// persist the user turn, generate, persist the assistant turn.
type Service struct {
	store  Store
	relay  Relay
	stream bool
}

func New(st Store, relay Relay, stream bool) *Service {
	return &Service{store: st, relay: relay, stream: stream}
}

// Streaming reports whether the service emits chunks as they arrive.
func (s *Service) Streaming() bool { return s.stream }

// per-request FSM data
type run struct {
	req    Request
	out    Emitter
	bot    *store.Bot
	prompt []prompt.Message
	reply  strings.Builder
	result Result
	err    error
	next   Trigger
}

func (r *run) fail(kind Kind, err error) Trigger {
	r.err = &Error{Kind: kind, Err: err}
	return TriggerFail
}

// Handle runs the request state machine to completion. Errors are *Error
// values; once out.Open has been called, a failure is meant to be reported
// as an error frame rather than an HTTP status.
func (s *Service) Handle(ctx context.Context, req Request, out Emitter) (*Result, error) {
	log := logger.FromContext(ctx)
	r := &run{req: req, out: out}

	fsm := stateless.NewStateMachine(StateIdle)
	fsm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		log.Debug("FSM transition", "from", t.Source, "to", t.Destination, "trigger", t.Trigger)
	})

	fsm.Configure(StateIdle).
		Permit(TriggerStart, StateValidating)

	fsm.Configure(StateValidating).
		OnEntry(r.step(s.validate)).
		Permit(TriggerValidated, StateBotLookup).
		Permit(TriggerFail, StateErrored)

	fsm.Configure(StateBotLookup).
		OnEntry(r.step(s.lookupBot)).
		Permit(TriggerBotFound, StateContextLoad).
		Permit(TriggerFail, StateErrored)

	// ContextLoad branches on chatId: history is only persisted for tracked conversations.
	fsm.Configure(StateContextLoad).
		OnEntry(r.step(s.loadContext)).
		Permit(TriggerPersistHistory, StateHistoryPersist).
		Permit(TriggerGenerate, StateGenerating).
		Permit(TriggerFail, StateErrored)

	fsm.Configure(StateHistoryPersist).
		OnEntry(r.step(s.persistHistory)).
		Permit(TriggerGenerate, StateGenerating).
		Permit(TriggerFail, StateErrored)

	fsm.Configure(StateGenerating).
		OnEntry(r.step(s.generate)).
		Permit(TriggerPersistResponse, StateResponsePersist).
		Permit(TriggerFinish, StateDone).
		Permit(TriggerFail, StateErrored)

	fsm.Configure(StateResponsePersist).
		OnEntry(r.step(s.persistResponse)).
		Permit(TriggerFinish, StateDone).
		Permit(TriggerFail, StateErrored)

	fsm.Configure(StateDone)
	fsm.Configure(StateErrored)

	r.next = TriggerStart
	r.drive(ctx, fsm)

	kind := KindOf(r.err)
	metrics.ChatRequests.WithLabelValues(kind.String()).Inc()
	if r.err != nil {
		log.Warn("chat request failed", "bot_id", req.BotID, "chat_id", req.ChatID, "state", fsm.MustState(), "kind", kind.String(), "error", r.err)
		return nil, r.err
	}

	r.result.Reply = r.reply.String()
	r.result.Streamed = s.stream
	log.Info("chat request done", "bot_id", req.BotID, "chat_id", req.ChatID, "reply_bytes", len(r.result.Reply))
	return &r.result, nil
}

// drive fires the recorded triggers until a state leaves none behind.
func (r *run) drive(ctx context.Context, fsm *stateless.StateMachine) {
	for r.next != "" {
		trigger := r.next
		r.next = ""
		if err := fsm.FireCtx(ctx, trigger); err != nil {
			logger.FromContext(ctx).Error("chat state machine rejected trigger", "state", fsm.MustState(), "trigger", trigger, "error", err)
			r.err = &Error{Kind: KindInternal, Err: fmt.Errorf("chat state machine: %w", err)}
			return
		}
	}
}

// step adapts a state action into an OnEntry handler that records the next trigger.
func (r *run) step(action func(context.Context, *run) Trigger) stateless.ActionFunc {
	return func(ctx context.Context, _ ...any) error {
		r.next = action(ctx, r)
		return nil
	}
}

func (s *Service) validate(_ context.Context, r *run) Trigger {
	if strings.TrimSpace(r.req.BotID) == "" {
		return r.fail(KindBadRequest, ErrMissingBotID)
	}
	return TriggerValidated
}

func (s *Service) lookupBot(ctx context.Context, r *run) Trigger {
	bot, err := s.store.GetBot(ctx, r.req.BotID)
	if err != nil {
		return r.fail(KindPersistence, err)
	}
	if bot == nil {
		return r.fail(KindNotFound, ErrBotNotFound)
	}
	r.bot = bot
	return TriggerBotFound
}

func (s *Service) loadContext(ctx context.Context, r *run) Trigger {
	docs, err := s.store.GetDocuments(ctx, r.bot.ID)
	if err != nil {
		return r.fail(KindPersistence, err)
	}
	r.prompt = prompt.Assemble(r.bot.SystemPrompt, docs, r.req.Messages)
	logger.FromContext(ctx).Debug("prompt assembled", "bot_id", r.bot.ID, "documents", len(docs), "entries", len(r.prompt))

	if r.req.ChatID != "" {
		return TriggerPersistHistory
	}
	return TriggerGenerate
}

// persistHistory records the user's turn before the model is called, so a
// crash during generation still leaves it stored.
func (s *Service) persistHistory(ctx context.Context, r *run) Trigger {
	if err := s.store.EnsureConversation(ctx, r.req.ChatID, r.bot.ID); err != nil {
		return r.fail(KindPersistence, err)
	}
	if n := len(r.req.Messages); n > 0 && r.req.Messages[n-1].Role == prompt.RoleUser {
		id, err := s.store.AppendMessage(ctx, r.req.ChatID, prompt.RoleUser, r.req.Messages[n-1].Content)
		if err != nil {
			return r.fail(KindPersistence, err)
		}
		r.result.UserMessageID = id
	}
	return TriggerGenerate
}

func (s *Service) generate(ctx context.Context, r *run) Trigger {
	if s.stream {
		if err := r.out.Open(); err != nil {
			return r.fail(KindGeneration, err)
		}
		err := s.relay.Stream(ctx, r.prompt, func(chunk string) error {
			metrics.ChatChunks.Inc()
			r.reply.WriteString(chunk)
			return r.out.Emit(chunk)
		})
		if err != nil {
			return r.fail(KindGeneration, err)
		}
	} else {
		answer, err := s.relay.Complete(ctx, r.prompt)
		if err != nil {
			return r.fail(KindGeneration, err)
		}
		r.reply.WriteString(answer)
	}

	if r.req.ChatID != "" {
		return TriggerPersistResponse
	}
	return TriggerFinish
}

func (s *Service) persistResponse(ctx context.Context, r *run) Trigger {
	id, err := s.store.AppendMessage(ctx, r.req.ChatID, prompt.RoleAssistant, r.reply.String())
	if err != nil {
		return r.fail(KindPersistence, err)
	}
	r.result.AssistantMessageID = id
	return TriggerFinish
}
