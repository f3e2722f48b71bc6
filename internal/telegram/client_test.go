package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"US_10Y", "US\\_10Y"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Close: 5012.34", "Close: 5012\\.34"},
		{"(+0.50%)", "\\(\\+0\\.50%\\)"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{`back\slash`, `back\\slash`},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := EscapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("EscapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// fakeBotAPI answers getMe and sendMessage the way the Bot API does.
type fakeBotAPI struct {
	mu    sync.Mutex
	paths []string
	forms []map[string]string
	fail  bool
	delay time.Duration
}

func (f *fakeBotAPI) handler(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	form := map[string]string{}
	for k := range r.PostForm {
		form[k] = r.PostForm.Get(k)
	}
	f.mu.Lock()
	f.paths = append(f.paths, r.URL.Path)
	f.forms = append(f.forms, form)
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"pulse","username":"pulse_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		if f.delay > 0 {
			time.Sleep(f.delay)
		}
		if f.fail {
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: can't parse entities"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1760832000,"chat":{"id":42,"type":"private"},"text":"ok"}}`))
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeBotAPI) sent() []map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []map[string]string
	for i, path := range f.paths {
		if strings.HasSuffix(path, "/sendMessage") {
			out = append(out, f.forms[i])
		}
	}
	return out
}

func newFakeClient(t *testing.T, fake *fakeBotAPI, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)

	opts = append([]Option{WithEndpoint(srv.URL + "/bot%s/%s"), WithTimeout(2 * time.Second)}, opts...)
	c, err := NewClient("123:abc", "42", opts...)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestNewClient_InvalidChatID(t *testing.T) {
	// The endpoint is unreachable, so reaching it would surface a different error.
	_, err := NewClient("123:abc", "not-a-number", WithEndpoint("http://127.0.0.1:0/bot%s/%s"))
	if err == nil {
		t.Fatal("Expected error for invalid chat ID, got nil")
	}
	if !strings.Contains(err.Error(), "invalid chat ID") {
		t.Errorf("error = %v, want invalid chat ID", err)
	}
}

func TestNewClient_MissingToken(t *testing.T) {
	if _, err := NewClient("", "42"); err == nil {
		t.Error("Expected error for empty bot token, got nil")
	}
}

func TestNotify(t *testing.T) {
	fake := &fakeBotAPI{}
	c := newFakeClient(t, fake)

	if err := c.Notify(context.Background(), "*Market pulse*"); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	sent := fake.sent()
	if len(sent) != 1 {
		t.Fatalf("sendMessage calls = %d, want 1", len(sent))
	}
	if sent[0]["chat_id"] != "42" {
		t.Errorf("chat_id = %q, want 42", sent[0]["chat_id"])
	}
	if sent[0]["text"] != "*Market pulse*" {
		t.Errorf("text = %q", sent[0]["text"])
	}
	if sent[0]["parse_mode"] != ParseModeMarkdownV2 {
		t.Errorf("parse_mode = %q, want %q", sent[0]["parse_mode"], ParseModeMarkdownV2)
	}
}

func TestNotify_PlainText(t *testing.T) {
	fake := &fakeBotAPI{}
	c := newFakeClient(t, fake, WithParseMode(""))

	if err := c.Notify(context.Background(), "plain (text)."); err != nil {
		t.Fatalf("Notify() error = %v", err)
	}

	sent := fake.sent()
	if len(sent) != 1 {
		t.Fatalf("sendMessage calls = %d, want 1", len(sent))
	}
	if mode := sent[0]["parse_mode"]; mode != "" {
		t.Errorf("parse_mode = %q, want empty", mode)
	}
	if c.ParseMode() != "" {
		t.Errorf("ParseMode() = %q, want empty", c.ParseMode())
	}
}

func TestNotify_APIErrorNotRetried(t *testing.T) {
	fake := &fakeBotAPI{fail: true}
	c := newFakeClient(t, fake)

	if err := c.Notify(context.Background(), "hello"); err == nil {
		t.Fatal("Expected error from failing Bot API, got nil")
	}
	if n := len(fake.sent()); n != 1 {
		t.Errorf("sendMessage calls = %d, want exactly 1", n)
	}
}

func TestNotify_ContextDone(t *testing.T) {
	fake := &fakeBotAPI{delay: 500 * time.Millisecond}
	c := newFakeClient(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Notify(ctx, "slow")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Notify() error = %v, want deadline exceeded", err)
	}
}

func TestSendError(t *testing.T) {
	fake := &fakeBotAPI{}
	c := newFakeClient(t, fake, WithParseMode(""))

	if err := c.SendError(errors.New("no market data available")); err != nil {
		t.Fatalf("SendError() error = %v", err)
	}

	sent := fake.sent()
	if len(sent) != 1 {
		t.Fatalf("sendMessage calls = %d, want 1", len(sent))
	}
	if sent[0]["parse_mode"] != ParseModeMarkdownV2 {
		t.Errorf("parse_mode = %q, want %q", sent[0]["parse_mode"], ParseModeMarkdownV2)
	}
	if !strings.Contains(sent[0]["text"], "no market data available") {
		t.Errorf("text = %q, want error message", sent[0]["text"])
	}
}
