package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, models ...string) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultClientConfig("test-key")
	cfg.BaseURL = server.URL
	if len(models) > 0 {
		cfg.Models = models
	}
	return NewClient(cfg)
}

func modelAnswer(text string) string {
	resp := map[string]interface{}{
		"candidates": []map[string]interface{}{
			{"content": map[string]interface{}{
				"parts": []map[string]string{{"text": text}},
			}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestGenerate_FirstModelWins(t *testing.T) {
	var calledModels []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calledModels = append(calledModels, modelFromPath(r.URL.Path))
		w.Write([]byte(modelAnswer("salom")))
	}, "model-a", "model-b")

	text, err := client.Generate(context.Background(), GenerateParams{Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "salom", text)
	assert.Equal(t, []string{"model-a"}, calledModels)
}

func TestGenerate_FallsBackToNextModel(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if modelFromPath(r.URL.Path) == "model-a" {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
			return
		}
		w.Write([]byte(modelAnswer("javob")))
	}, "model-a", "model-b")

	text, err := client.Generate(context.Background(), GenerateParams{Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "javob", text)
}

func TestGenerate_AllModelsFailed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":503,"message":"overloaded"}}`))
	}, "model-a", "model-b")

	_, err := client.Generate(context.Background(), GenerateParams{Prompt: "hi"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllModelsFailed)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestGenerate_AllModelsFailedReportsFirstFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if modelFromPath(r.URL.Path) == "model-a" {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"code":429,"message":"quota exceeded"}}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":503,"message":"overloaded"}}`))
	}, "model-a", "model-b")

	_, err := client.Generate(context.Background(), GenerateParams{Prompt: "hi"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllModelsFailed)
	assert.Contains(t, err.Error(), "quota exceeded", "the preferred model's failure is the reported cause")
	assert.NotContains(t, err.Error(), "overloaded")
}

func TestGenerate_EmptyCandidatesTriggersFallback(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if modelFromPath(r.URL.Path) == "model-a" {
			w.Write([]byte(`{"candidates":[]}`))
			return
		}
		w.Write([]byte(modelAnswer("ok")))
	}, "model-a", "model-b")

	text, err := client.Generate(context.Background(), GenerateParams{Prompt: "hi"})

	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestGenerate_NoModelsConfigured(t *testing.T) {
	cfg := DefaultClientConfig("key")
	cfg.Models = nil
	client := NewClient(cfg)

	_, err := client.Generate(context.Background(), GenerateParams{Prompt: "hi"})

	assert.ErrorIs(t, err, ErrNoModels)
}

func TestGenerate_SendsSystemInstruction(t *testing.T) {
	var captured generateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(modelAnswer("ok")))
	}, "model-a")

	_, err := client.Generate(context.Background(), GenerateParams{
		SystemPrompt: "sen yordamchisan",
		Prompt:       "savol",
	})

	require.NoError(t, err)
	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, "sen yordamchisan", captured.SystemInstruction.Parts[0].Text)
	require.Len(t, captured.Contents, 1)
	assert.Equal(t, "savol", captured.Contents[0].Parts[0].Text)
}

func TestExtractJSON(t *testing.T) {
	type graded struct {
		Grade    int    `json:"grade"`
		Feedback string `json:"feedback"`
	}

	tests := []struct {
		name     string
		raw      string
		expected graded
	}{
		{
			name:     "plain object",
			raw:      `{"grade": 85, "feedback": "yaxshi"}`,
			expected: graded{Grade: 85, Feedback: "yaxshi"},
		},
		{
			name:     "markdown fenced",
			raw:      "```json\n{\"grade\": 70, \"feedback\": \"o'rtacha\"}\n```",
			expected: graded{Grade: 70, Feedback: "o'rtacha"},
		},
		{
			name:     "surrounding prose",
			raw:      "Here is the result:\n{\"grade\": 90, \"feedback\": \"zo'r\"}\nHope that helps!",
			expected: graded{Grade: 90, Feedback: "zo'r"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out graded
			require.NoError(t, ExtractJSON(tt.raw, &out))
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestExtractJSON_NoObject(t *testing.T) {
	var out map[string]interface{}
	err := ExtractJSON("the essay is quite good overall", &out)
	assert.Error(t, err)
}

func modelFromPath(path string) string {
	// Path looks like /models/<model>:generateContent
	rest := strings.TrimPrefix(path, "/models/")
	if i := strings.IndexByte(rest, ':'); i >= 0 {
		return rest[:i]
	}
	return rest
}
