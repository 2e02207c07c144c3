package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	name string
	err  error
	sent []string
}

func (s *stubSender) Send(_ context.Context, title, message string) error {
	s.sent = append(s.sent, title+"|"+message)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, []string{"arb_executed", " scanner_error "}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "arb_executed", "t", "m"))
	require.NoError(t, n.Notify(context.Background(), "scanner_error", "t", "m"))
	require.NoError(t, n.Notify(context.Background(), "trade_executed", "t", "m"))
	assert.Len(t, s.sent, 2)

	require.NoError(t, n.NotifyAll(context.Background(), "t", "m"))
	assert.Len(t, s.sent, 3)
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	s := &stubSender{name: "stub"}
	n := NewNotifier([]Sender{s}, nil, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, s.sent, 1)
}

func TestNotifier_OneFailureDoesNotStopOthers(t *testing.T) {
	bad := &stubSender{name: "bad", err: errors.New("offline")}
	good := &stubSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), "arb_executed", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: offline")
	assert.Len(t, good.sent, 1)
}

func TestNotifier_NoSenders(t *testing.T) {
	n := NewNotifier(Senders("", "", ""), nil, discardLogger())
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), "arb_executed", "t", "m"))

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled())
}

func TestSenders_SkipsMissingCredentials(t *testing.T) {
	assert.Len(t, Senders("token", "", ""), 0)
	assert.Len(t, Senders("token", "chat", ""), 1)
	assert.Len(t, Senders("token", "chat", "https://discord.example/hook"), 2)
}

func TestTelegramSender_Send(t *testing.T) {
	var got map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("abc", "42").WithAPIBase(srv.URL + "/")
	require.NoError(t, s.Send(context.Background(), "Arbitrage executed", "tx 0x01"))

	assert.Equal(t, "/botabc/sendMessage", path)
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*Arbitrage executed*\ntx 0x01", got["text"])
	assert.Equal(t, "Markdown", got["parse_mode"])
}

func TestDiscordSender_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	s := NewDiscordSender(srv.URL)
	require.NoError(t, s.Send(context.Background(), "Scanner error", strings.Repeat("x", 3000)))

	assert.True(t, strings.HasPrefix(got["content"], "**Scanner error**\n"))
	assert.Len(t, []rune(got["content"]), discordContentLimit)
}

func TestDiscordSender_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 404")
}
