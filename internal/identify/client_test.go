package identify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/leafcare/internal/domain"
)

func completion(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-123",
		"object":  "chat.completion",
		"created": 1677652288,
		"model":   "test-model",
		"choices": []map[string]any{
			{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
	}
}

// reply is one canned answer; status 0 means 200.
type reply struct {
	status  int
	content string
}

type requests struct {
	mu     sync.Mutex
	bodies []map[string]any
}

func (r *requests) at(i int) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bodies[i]
}

// fakeService answers the n-th request with replies[n], repeating the last.
func fakeService(t *testing.T, replies ...reply) (*httptest.Server, *atomic.Int32, *requests) {
	t.Helper()
	var calls atomic.Int32
	seen := &requests{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		seen.mu.Lock()
		seen.bodies = append(seen.bodies, body)
		seen.mu.Unlock()

		n := int(calls.Add(1)) - 1
		if n >= len(replies) {
			n = len(replies) - 1
		}
		rp := replies[n]
		w.Header().Set("Content-Type", "application/json")
		if rp.status != 0 && rp.status != http.StatusOK {
			w.WriteHeader(rp.status)
			_, _ = w.Write([]byte(`{"error":{"message":"upstream said no","type":"server_error"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(completion(rp.content))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, seen
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Config{
		BaseURL:     srv.URL + "/v1",
		APIKey:      "test",
		Model:       "test-model",
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		BackoffBase: time.Millisecond,
	}, nil)
}

const monstera = `{
  "commonName": "Swiss cheese plant",
  "scientificName": "Monstera deliciosa",
  "family": "Araceae",
  "genus": "Monstera",
  "description": "A climbing aroid.",
  "confidence": 92,
  "care": {"watering": "Weekly", "light": "Bright indirect"},
  "commonProblems": [{"name": "Root rot", "symptoms": "Yellow leaves", "solution": "Water less"}],
  "similarPlants": [{"name": "Split-leaf philodendron", "scientificName": "Thaumatophyllum bipinnatifidum", "difference": "No holes"},],
}`

func TestIdentifyImage(t *testing.T) {
	srv, calls, bodies := fakeService(t, reply{content: "```json\n" + monstera + "\n```"})
	c := newTestClient(srv)

	id, err := c.IdentifyImage(context.Background(), []byte("\x89PNG\r\n\x1a\nfake"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "Monstera deliciosa", id.ScientificName)
	assert.Equal(t, "Bright indirect", id.Care.Light)
	assert.InDelta(t, 0.92, id.Confidence, 1e-9)
	require.Len(t, id.SimilarPlants, 1)
	assert.EqualValues(t, 1, calls.Load())

	req := bodies.at(0)
	assert.Equal(t, "test-model", req["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, req["response_format"])
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 2)
	parts := msgs[1].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	url := parts[1].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.Contains(t, url, "data:image/png;base64,")
}

func TestIdentifyName(t *testing.T) {
	srv, _, bodies := fakeService(t, reply{content: "Sure! " + monstera})
	c := newTestClient(srv)

	id, err := c.IdentifyName(context.Background(), "monstera")
	require.NoError(t, err)
	assert.Equal(t, "Swiss cheese plant", id.CommonName)

	msgs := bodies.at(0)["messages"].([]any)
	assert.Contains(t, msgs[1].(map[string]any)["content"], `"monstera"`)
}

func TestDiagnose_NormalizesSeverity(t *testing.T) {
	testCases := []struct {
		status string
		want   domain.Severity
	}{
		{status: "Healthy", want: domain.Healthy},
		{status: "critical", want: domain.Critical},
		{status: "so-so", want: domain.Warning},
		{status: "", want: domain.Warning},
	}

	for _, tc := range testCases {
		t.Run(tc.status, func(t *testing.T) {
			srv, _, _ := fakeService(t, reply{content: `{"status":"` + tc.status + `","summary":"ok","issues":[],"recommendations":["Keep going"]}`})
			d, err := newTestClient(srv).Diagnose(context.Background(), []byte("img"), "image/jpeg")
			require.NoError(t, err)
			assert.Equal(t, tc.want, d.Status)
			assert.Equal(t, []string{"Keep going"}, d.Recommendations)
		})
	}
}

func TestChat(t *testing.T) {
	srv, _, bodies := fakeService(t, reply{content: "  Water it when the top inch is dry.  "})
	c := newTestClient(srv)

	history := []domain.ChatMessage{
		{Role: "user", Content: "Hi"},
		{Role: "assistant", Content: "Hello!"},
	}
	answer, err := c.Chat(context.Background(), "Monstera deliciosa, kept indoors", history, "How often should I water?")
	require.NoError(t, err)
	assert.Equal(t, "Water it when the top inch is dry.", answer)

	req := bodies.at(0)
	assert.Nil(t, req["response_format"])
	msgs := req["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[0].(map[string]any)["content"], "Monstera deliciosa")
	assert.Equal(t, "How often should I water?", msgs[3].(map[string]any)["content"])
}

func TestRetries(t *testing.T) {
	t.Run("server errors are retried", func(t *testing.T) {
		srv, calls, _ := fakeService(t,
			reply{status: http.StatusServiceUnavailable},
			reply{status: http.StatusTooManyRequests},
			reply{content: monstera},
		)
		_, err := newTestClient(srv).IdentifyName(context.Background(), "monstera")
		require.NoError(t, err)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		srv, calls, _ := fakeService(t, reply{status: http.StatusInternalServerError})
		_, err := newTestClient(srv).IdentifyName(context.Background(), "monstera")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.EqualValues(t, 3, calls.Load())
	})

	t.Run("client errors are final", func(t *testing.T) {
		srv, calls, _ := fakeService(t, reply{status: http.StatusUnauthorized})
		_, err := newTestClient(srv).IdentifyName(context.Background(), "monstera")
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.EqualValues(t, 1, calls.Load())
	})
}

func TestBadResponse(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "prose only", content: "I am not sure what this is."},
		{name: "broken json", content: `{"commonName": }`},
		{name: "no name", content: `{"family": "Araceae"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv, calls, _ := fakeService(t, reply{content: tc.content})
			_, err := newTestClient(srv).IdentifyName(context.Background(), "x")
			assert.ErrorIs(t, err, ErrBadResponse)
			assert.EqualValues(t, 1, calls.Load(), "bad replies are not retried")
		})
	}
}

func TestExtractJSON(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: `{"a":1}`, want: `{"a":1}`},
		{name: "fenced", input: "```json\n{\"a\":1}\n```", want: `{"a":1}`},
		{name: "surrounded by prose", input: `Here you go: {"a":1} enjoy`, want: `{"a":1}`},
		{name: "trailing commas", input: `{"a":[1,2,],}`, want: `{"a":[1,2]}`},
		{name: "none", input: "nothing here", want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, extractJSON(tc.input))
		})
	}
}
