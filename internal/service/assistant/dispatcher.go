package assistant

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"jarvis/internal/config"
	"jarvis/internal/conversation"
	"jarvis/internal/id"
	"jarvis/internal/models"
)

const (
	GreetingText = "Hello, I am Jarvis. How can I assist you today?"
	FallbackText = "Sorry, I encountered an error processing your request."
	StallText    = "I'm processing your request. How else can I help you?"
)

// Completer turns a conversation history into the assistant's reply.
type Completer interface {
	Complete(ctx context.Context, history []models.Message) (string, error)
}

type Config struct {
	// APIKey is only inspected for presence; the Completer carries the real credential.
	APIKey     string
	StallDelay time.Duration
}

// Dispatcher owns the conversation and runs one completion round-trip per submission.
// Overlapping submissions are not serialized, deduplicated or cancelled.
type Dispatcher struct {
	conv       *conversation.Conversation
	completer  Completer
	apiKey     string
	stallDelay time.Duration
	now        func() time.Time

	inflight sync.WaitGroup
}

// NewConversation starts a conversation with the Jarvis greeting.
func NewConversation() *conversation.Conversation {
	return conversation.New(models.Message{
		ID:        id.New(),
		Text:      GreetingText,
		IsUser:    false,
		CreatedAt: time.Now(),
	})
}

func NewDispatcher(conv *conversation.Conversation, completer Completer, cfg Config) *Dispatcher {
	if conv == nil {
		conv = NewConversation()
	}
	delay := cfg.StallDelay
	if delay <= 0 {
		delay = config.DefaultStallDelay
	}
	return &Dispatcher{
		conv:       conv,
		completer:  completer,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		stallDelay: delay,
		now:        time.Now,
	}
}

func (d *Dispatcher) Conversation() *conversation.Conversation {
	return d.conv
}

// Submit appends text as a user message, clears the draft and starts the
// completion in the background. Whitespace-only text is a no-op and reports false.
func (d *Dispatcher) Submit(ctx context.Context, text string) (models.Message, bool) {
	if strings.TrimSpace(text) == "" {
		return models.Message{}, false
	}

	userMsg := d.newMessage(text, true)
	history := d.conv.AppendUser(userMsg)

	// the completion outlives the caller's request
	bg := context.WithoutCancel(ctx)
	d.inflight.Add(1)
	go func() {
		defer d.inflight.Done()
		d.complete(bg, userMsg, history)
	}()

	if d.apiKey == "" {
		log.Warn().Str("component", "dispatcher").Int64("message_id", userMsg.ID).Msg("completion api key is not set, using fallback response")
		d.inflight.Add(1)
		time.AfterFunc(d.stallDelay, func() {
			defer d.inflight.Done()
			d.conv.Append(d.newMessage(StallText, false))
		})
	}
	return userMsg, true
}

// SubmitDraft submits the current draft.
func (d *Dispatcher) SubmitDraft(ctx context.Context) (models.Message, bool) {
	return d.Submit(ctx, d.conv.Draft())
}

// Wait blocks until every started completion and stall reply has been appended.
func (d *Dispatcher) Wait() {
	d.inflight.Wait()
}

func (d *Dispatcher) complete(ctx context.Context, userMsg models.Message, history []models.Message) {
	logger := log.With().Str("component", "dispatcher").Int64("message_id", userMsg.ID).Logger()
	if d.completer == nil {
		logger.Error().Msg("error calling completion api: no completer configured")
		d.conv.Append(d.newMessage(FallbackText, false))
		return
	}
	start := d.now()
	reply, err := d.completer.Complete(ctx, history)
	if err != nil {
		logger.Error().Err(err).Msg("error calling completion api")
		d.conv.Append(d.newMessage(FallbackText, false))
		return
	}
	logger.Debug().Int64("duration_ms", d.now().Sub(start).Milliseconds()).Msg("completion appended")
	d.conv.Append(d.newMessage(reply, false))
}

func (d *Dispatcher) newMessage(text string, isUser bool) models.Message {
	return models.Message{
		ID:        id.New(),
		Text:      text,
		IsUser:    isUser,
		CreatedAt: d.now(),
	}
}
