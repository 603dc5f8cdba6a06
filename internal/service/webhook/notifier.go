package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

var (
	ErrNotConfigured  = errors.New("N8N_WEBHOOK_URL is not configured")
	ErrInvalidMessage = errors.New("Message must be a string")
)

// Result is either the endpoint's JSON body, passed through untouched, or a
// normalized error.
type Result struct {
	Body  json.RawMessage
	Error string
}

func (r Result) Failed() bool {
	return r.Error != ""
}

func (r Result) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{Error: r.Error})
	}
	if len(r.Body) == 0 {
		return []byte("null"), nil
	}
	return r.Body, nil
}

type payload struct {
	Message string `json:"message"`
}

// Notifier posts a single message to an automation webhook. One attempt, no timeout.
type Notifier struct {
	url    string
	client *http.Client
}

func NewNotifier(target string, client *http.Client) *Notifier {
	if client == nil {
		client = &http.Client{}
	}
	return &Notifier{url: strings.TrimSpace(target), client: client}
}

// Notify validates message and delivers it. Configuration and validation problems
// are returned as errors; HTTP and transport failures are folded into the Result.
func (n *Notifier) Notify(ctx context.Context, message any) (Result, error) {
	if n == nil || n.url == "" {
		return Result{}, ErrNotConfigured
	}
	text, ok := message.(string)
	if !ok {
		return Result{}, ErrInvalidMessage
	}

	body, err := encodePayload(text)
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return Result{Error: err.Error()}, nil
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return Result{Error: transportMessage(err)}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Result{Error: fmt.Sprintf("HTTP error! status: %d", resp.StatusCode)}, nil
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Error: transportMessage(err)}, nil
	}
	if !gjson.ValidBytes(raw) {
		return Result{Error: "invalid JSON in webhook response"}, nil
	}
	return Result{Body: json.RawMessage(bytes.TrimSpace(raw))}, nil
}

// encodePayload leaves <, > and & unescaped.
func encodePayload(text string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload{Message: text}); err != nil {
		return nil, errors.Wrap(err, "encode webhook payload")
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// transportMessage strips the *url.Error envelope so the transport's own message
// is reported.
func transportMessage(err error) string {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err.Error()
	}
	return err.Error()
}
