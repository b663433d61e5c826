package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, req ChatRequest)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req ChatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		handler(w, r, req)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	})
}

func TestChatClientInvoke(t *testing.T) {
	var gotAuth atomic.Value
	srv := completionServer(t, func(w http.ResponseWriter, r *http.Request, req ChatRequest) {
		gotAuth.Store(r.Header.Get("Authorization"))
		assert.Equal(t, "judge-model", req.Model)
		if assert.Len(t, req.Messages, 1) {
			assert.Equal(t, "user", req.Messages[0].Role)
			assert.Equal(t, "decide", req.Messages[0].Content)
		}
		writeCompletion(w, `{"winner":"plaintiff","reasoning":"ok"}`)
	})
	client := NewChatClient(ChatConfig{BaseURL: srv.URL, Model: "judge-model", APIKey: "secret"})
	out, err := client.Invoke(context.Background(), "decide")
	require.NoError(t, err)
	assert.Equal(t, `{"winner":"plaintiff","reasoning":"ok"}`, out)
	assert.Equal(t, "Bearer secret", gotAuth.Load())
}

func TestChatClientErrorsAreClassified(t *testing.T) {
	t.Run("non-2xx is unavailable", func(t *testing.T) {
		srv := completionServer(t, func(w http.ResponseWriter, _ *http.Request, _ ChatRequest) {
			w.WriteHeader(http.StatusBadGateway)
		})
		client := NewChatClient(ChatConfig{BaseURL: srv.URL})
		_, err := client.Invoke(context.Background(), "p")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("unreachable is unavailable", func(t *testing.T) {
		client := NewChatClient(ChatConfig{BaseURL: "http://127.0.0.1:1"})
		_, err := client.Invoke(context.Background(), "p")
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("slow is timeout", func(t *testing.T) {
		srv := completionServer(t, func(w http.ResponseWriter, _ *http.Request, _ ChatRequest) {
			time.Sleep(200 * time.Millisecond)
			writeCompletion(w, "late")
		})
		client := NewChatClient(ChatConfig{BaseURL: srv.URL})
		inv := WithTimeout(client, 20*time.Millisecond)
		_, err := inv.Invoke(context.Background(), "p")
		assert.ErrorIs(t, err, ErrTimeout)
	})
}

func TestChatClientGuardOpens(t *testing.T) {
	var calls atomic.Int32
	srv := completionServer(t, func(w http.ResponseWriter, _ *http.Request, _ ChatRequest) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})
	client := NewChatClient(ChatConfig{BaseURL: srv.URL, MaxFailures: 2, Cooldown: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := client.Invoke(context.Background(), "p")
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	_, err := client.Invoke(context.Background(), "p")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGuard(t *testing.T) {
	now := time.Unix(1000, 0)
	g := NewGuard(2, time.Minute)
	g.now = func() time.Time { return now }

	assert.True(t, g.Allow())
	g.RecordFailure()
	assert.True(t, g.Allow())
	g.RecordFailure()
	assert.False(t, g.Allow())
	assert.Equal(t, 2, g.Failures())

	now = now.Add(2 * time.Minute)
	assert.True(t, g.Allow())

	g.RecordSuccess()
	assert.Zero(t, g.Failures())
	assert.True(t, g.DisabledUntil().IsZero())

	var nilGuard *Guard
	assert.True(t, nilGuard.Allow())
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, Classify(ctx, nil))
	assert.ErrorIs(t, Classify(ctx, errors.New("refused")), ErrUnavailable)
	assert.ErrorIs(t, Classify(ctx, context.DeadlineExceeded), ErrTimeout)
	assert.ErrorIs(t, Classify(ctx, context.Canceled), context.Canceled)
	assert.NotErrorIs(t, Classify(ctx, context.Canceled), ErrUnavailable)

	wrapped := Classify(ctx, ErrTimeout)
	assert.Equal(t, ErrTimeout, wrapped)
}

func TestWithTimeoutPassesResult(t *testing.T) {
	inv := WithTimeout(InvokerFunc(func(ctx context.Context, prompt string) (string, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return "echo " + prompt, nil
	}), time.Second)

	out, err := inv.Invoke(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, "echo x", out)
}

func TestTemplate(t *testing.T) {
	tmpl := MustTemplate("t", "Plaintiff: {{.Name}}")
	out, err := tmpl.Render(map[string]string{"Name": "alice"})
	require.NoError(t, err)
	assert.Equal(t, "Plaintiff: alice", out)

	_, err = tmpl.Render(map[string]string{})
	assert.Error(t, err)
}
