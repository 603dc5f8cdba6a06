package assistant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/config"
	"jarvis/internal/models"
	"jarvis/internal/service/ai"
)

type fakeCompleter struct {
	mu      sync.Mutex
	calls   int32
	seen    [][]models.Message
	reply   string
	err     error
	onCall  func(history []models.Message)
	release chan struct{}
}

func (f *fakeCompleter) Complete(_ context.Context, history []models.Message) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.onCall != nil {
		f.onCall(history)
	}
	f.mu.Lock()
	f.seen = append(f.seen, history)
	f.mu.Unlock()
	if f.release != nil {
		<-f.release
	}
	return f.reply, f.err
}

func newTestDispatcher(c Completer, apiKey string) *Dispatcher {
	return NewDispatcher(nil, c, Config{APIKey: apiKey, StallDelay: 10 * time.Millisecond})
}

func texts(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestSubmitAppendsUserMessageBeforeCompletion(t *testing.T) {
	var lenAtCall int
	completer := &fakeCompleter{reply: "Test AI response"}
	d := newTestDispatcher(completer, "test-openai-key")
	completer.onCall = func(history []models.Message) {
		lenAtCall = d.Conversation().Len()
	}
	d.Conversation().SetDraft("hi")

	msg, ok := d.Submit(context.Background(), "hi")
	require.True(t, ok)
	assert.True(t, msg.IsUser)
	assert.Equal(t, "hi", msg.Text)
	assert.Empty(t, d.Conversation().Draft())

	d.Wait()
	assert.Equal(t, 2, lenAtCall)
	require.Len(t, completer.seen, 1)
	assert.Equal(t, []string{GreetingText, "hi"}, texts(completer.seen[0]))
}

func TestSubmitSuccessAppendsAssistantReply(t *testing.T) {
	d := newTestDispatcher(&fakeCompleter{reply: "Test AI response"}, "test-openai-key")
	_, ok := d.Submit(context.Background(), "hi")
	require.True(t, ok)
	d.Wait()

	msgs := d.Conversation().Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{GreetingText, "hi", "Test AI response"}, texts(msgs))
	assert.False(t, msgs[0].IsUser)
	assert.True(t, msgs[1].IsUser)
	assert.False(t, msgs[2].IsUser)
	assert.Greater(t, msgs[2].ID, msgs[1].ID)
}

func TestSubmitBlankIsNoop(t *testing.T) {
	completer := &fakeCompleter{reply: "unused"}
	d := newTestDispatcher(completer, "test-openai-key")
	d.Conversation().SetDraft("   ")

	for _, text := range []string{"", "   ", "\n\t "} {
		_, ok := d.Submit(context.Background(), text)
		assert.False(t, ok)
	}
	d.Wait()
	assert.Equal(t, 1, d.Conversation().Len())
	assert.Zero(t, atomic.LoadInt32(&completer.calls))
	assert.Equal(t, "   ", d.Conversation().Draft())
}

func TestSubmitKeepsUntrimmedText(t *testing.T) {
	d := newTestDispatcher(&fakeCompleter{reply: "ok"}, "k")
	msg, ok := d.Submit(context.Background(), "  spaced  ")
	require.True(t, ok)
	d.Wait()
	assert.Equal(t, "  spaced  ", msg.Text)
}

func TestSubmitFailureAppendsFallback(t *testing.T) {
	d := newTestDispatcher(&fakeCompleter{err: errors.New("API request failed")}, "test-openai-key")
	_, ok := d.Submit(context.Background(), "hi")
	require.True(t, ok)
	d.Wait()

	last, ok := d.Conversation().Last()
	require.True(t, ok)
	assert.Equal(t, FallbackText, last.Text)
	assert.False(t, last.IsUser)
	assert.Equal(t, 3, d.Conversation().Len())
}

func TestSubmitWithoutAPIKeyAppendsBothReplies(t *testing.T) {
	d := newTestDispatcher(&fakeCompleter{err: errors.New("401 unauthorized")}, "")
	_, ok := d.Submit(context.Background(), "hi")
	require.True(t, ok)
	d.Wait()

	msgs := d.Conversation().Messages()
	require.Len(t, msgs, 4)
	assert.ElementsMatch(t, []string{FallbackText, StallText}, texts(msgs[2:]))
}

func TestSubmitWithoutAPIKeyStallsAfterDelay(t *testing.T) {
	release := make(chan struct{})
	d := NewDispatcher(nil, &fakeCompleter{reply: "late", release: release}, Config{StallDelay: 20 * time.Millisecond})
	_, ok := d.Submit(context.Background(), "hi")
	require.True(t, ok)
	assert.Equal(t, 2, d.Conversation().Len())

	require.Eventually(t, func() bool { return d.Conversation().Len() == 3 }, time.Second, 5*time.Millisecond)
	last, _ := d.Conversation().Last()
	assert.Equal(t, StallText, last.Text)

	close(release)
	d.Wait()
	last, _ = d.Conversation().Last()
	assert.Equal(t, "late", last.Text)
}

func TestOverlappingSubmissionsAreNotGuarded(t *testing.T) {
	release := make(chan struct{})
	completer := &fakeCompleter{reply: "done", release: release}
	d := newTestDispatcher(completer, "k")

	_, ok1 := d.Submit(context.Background(), "first")
	_, ok2 := d.Submit(context.Background(), "second")
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, 3, d.Conversation().Len())

	require.Eventually(t, func() bool { return atomic.LoadInt32(&completer.calls) == 2 }, time.Second, 5*time.Millisecond)
	close(release)
	d.Wait()
	assert.Equal(t, 5, d.Conversation().Len())
}

func TestSubmitSurvivesCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	d := newTestDispatcher(&fakeCompleter{reply: "still here", release: release}, "k")
	ctx, cancel := context.WithCancel(context.Background())
	_, ok := d.Submit(ctx, "hi")
	require.True(t, ok)
	cancel()
	close(release)
	d.Wait()
	last, _ := d.Conversation().Last()
	assert.Equal(t, "still here", last.Text)
}

func TestSubmitDraft(t *testing.T) {
	d := newTestDispatcher(&fakeCompleter{reply: "ok"}, "k")
	d.Conversation().SetDraft("from draft")
	msg, ok := d.SubmitDraft(context.Background())
	require.True(t, ok)
	d.Wait()
	assert.Equal(t, "from draft", msg.Text)
	assert.Empty(t, d.Conversation().Draft())
}

func TestConcurrentSubmitsSendOwnMessageLast(t *testing.T) {
	completer := &fakeCompleter{reply: "ok"}
	d := newTestDispatcher(completer, "test-openai-key")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Submit(context.Background(), "hi")
		}()
	}
	wg.Wait()
	d.Wait()

	completer.mu.Lock()
	defer completer.mu.Unlock()
	require.Len(t, completer.seen, 16)
	seenLast := make(map[int64]bool)
	for _, history := range completer.seen {
		last := history[len(history)-1]
		assert.True(t, last.IsUser)
		assert.False(t, seenLast[last.ID], "two completions saw the same latest message")
		seenLast[last.ID] = true
	}
}

func TestSubmitEmptyChoicesAppendsFallback(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": "chatcmpl-3", "object": "chat.completion", "model": "gpt-3.5-turbo", "choices": []}`))
	}))
	defer srv.Close()

	svc, err := ai.NewService(context.Background(), config.CompletionConfig{BaseURL: srv.URL, APIKey: "test-openai-key"})
	require.NoError(t, err)
	d := newTestDispatcher(svc, "test-openai-key")

	_, ok := d.Submit(context.Background(), "hi")
	require.True(t, ok)
	d.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, []string{GreetingText, "hi", FallbackText}, texts(d.Conversation().Messages()))
}
