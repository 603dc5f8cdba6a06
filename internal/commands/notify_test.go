package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jarvis/internal/service/webhook"
)

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNotifyCommandPrintsPassThroughBody(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(r.Body)
		got <- buf.String()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()
	t.Setenv("N8N_WEBHOOK_URL", srv.URL)

	out, err := executeRoot(t, "notify", "--log-level", "error", "Deploy finished")
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, strings.TrimSpace(out))
	assert.Equal(t, `{"message":"Deploy finished"}`, <-got)
}

func TestNotifyCommandPrintsNormalizedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()
	t.Setenv("N8N_WEBHOOK_URL", srv.URL)

	out, err := executeRoot(t, "notify", "--log-level", "error", "hello")
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"HTTP error! status: 404"}`, strings.TrimSpace(out))
}

func TestNotifyCommandFailsWithoutURL(t *testing.T) {
	t.Setenv("N8N_WEBHOOK_URL", "")
	_, err := executeRoot(t, "notify", "--log-level", "error", "hello")
	require.Error(t, err)
	assert.True(t, errors.Is(err, webhook.ErrNotConfigured))
}
