package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCompleter_Complete(t *testing.T) {
	var gotRequest map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "test-model",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": " {\"price\": 80} "}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150}
		}`))
	}))
	defer server.Close()

	c := NewChatCompleter("test-key", server.URL, "test-model")
	out, err := c.Complete(context.Background(), "Nike Air Max £80")
	require.NoError(t, err)
	assert.Equal(t, `{"price": 80}`, out)

	assert.Equal(t, "test-model", gotRequest["model"])
	format, ok := gotRequest["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])

	messages, ok := gotRequest["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "Nike Air Max £80", messages[1].(map[string]any)["content"])
}

func TestChatCompleter_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": {"message": "rate limited", "type": "rate_limit"}}`))
	}))
	defer server.Close()

	c := NewChatCompleter("test-key", server.URL, "test-model")
	_, err := c.Complete(context.Background(), "x")
	assert.Error(t, err)
}

func TestParseImageProduct(t *testing.T) {
	product, err := parseImageProduct("```json\n{\"brand\": \" Nike \", \"productType\": \"sneakers\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, &ImageProduct{Brand: "Nike", ProductType: "sneakers"}, product)

	_, err = parseImageProduct("no idea")
	assert.Error(t, err)
}
