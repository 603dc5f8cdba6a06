package conversation

import (
	"sync"

	"github.com/rs/zerolog/log"

	"jarvis/internal/models"
)

const defaultSubscriberBuffer = 32

// Conversation is the append-only, ordered message thread plus the pending
// input draft. Appends may come from several goroutines; the mutex serializes them.
type Conversation struct {
	mu       sync.RWMutex
	messages []models.Message
	draft    string

	subsMu  sync.Mutex
	subs    map[int]chan models.Message
	nextSub int
}

// View is the derived, render-ready state of a conversation.
type View struct {
	Messages []models.Message `json:"messages"`
	Draft    string           `json:"draft"`
}

// New starts a conversation whose first element is greeting.
func New(greeting models.Message) *Conversation {
	return &Conversation{
		messages: []models.Message{greeting},
		subs:     make(map[int]chan models.Message),
	}
}

// Append adds msg to the end of the thread and returns the new length.
func (c *Conversation) Append(msg models.Message) int {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	n := len(c.messages)
	// notify under the write lock so subscribers observe append order
	c.publish(msg)
	c.mu.Unlock()
	return n
}

// AppendUser appends msg, clears the draft and returns the thread as it stands
// right after the append, all under one lock.
func (c *Conversation) AppendUser(msg models.Message) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	c.draft = ""
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	c.publish(msg)
	return out
}

// Messages returns a copy of the thread in insertion order.
func (c *Conversation) Messages() []models.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

func (c *Conversation) Last() (models.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return models.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

// Snapshot returns the messages and the draft as one consistent view.
func (c *Conversation) Snapshot() View {
	c.mu.RLock()
	defer c.mu.RUnlock()
	msgs := make([]models.Message, len(c.messages))
	copy(msgs, c.messages)
	return View{Messages: msgs, Draft: c.draft}
}

func (c *Conversation) SetDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

func (c *Conversation) Draft() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.draft
}

func (c *Conversation) ClearDraft() {
	c.SetDraft("")
}

// Subscribe returns a channel receiving every message appended after the call.
// A subscriber that falls behind by more than buffer messages misses the overflow.
func (c *Conversation) Subscribe(buffer int) (<-chan models.Message, func()) {
	if buffer <= 0 {
		buffer = defaultSubscriberBuffer
	}
	ch := make(chan models.Message, buffer)

	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers reports the number of active subscriptions.
func (c *Conversation) Subscribers() int {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	return len(c.subs)
}

func (c *Conversation) publish(msg models.Message) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for id, ch := range c.subs {
		select {
		case ch <- msg:
		default:
			log.Warn().Str("component", "conversation").Int("subscriber", id).Int64("message_id", msg.ID).Msg("subscriber buffer full, dropping message")
		}
	}
}
