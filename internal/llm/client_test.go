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

func testConfig(url string) *Config {
	return &Config{
		APIKey:      "test-key",
		APIURL:      url,
		Model:       "test-model",
		MaxTokens:   100,
		Temperature: 0.3,
		Timeout:     5,
	}
}

func TestNewClient_ValidatesConfig(t *testing.T) {
	_, err := NewClient(&Config{APIURL: "http://x", Model: "m"})
	require.Error(t, err)

	_, err = NewClient(testConfig("http://localhost"))
	require.NoError(t, err)
}

func TestClient_SimpleChat(t *testing.T) {
	var gotRequest ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotRequest))

		json.NewEncoder(w).Encode(ChatResponse{
			Model: "test-model",
			Choices: []Choice{
				{Message: Message{Role: "assistant", Content: "bonjour"}},
			},
		})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	content, err := client.SimpleChat(context.Background(), "hello", "you translate")
	require.NoError(t, err)
	assert.Equal(t, "bonjour", content)

	require.Len(t, gotRequest.Messages, 2)
	assert.Equal(t, "system", gotRequest.Messages[0].Role)
	assert.Equal(t, "user", gotRequest.Messages[1].Role)
}

func TestClient_SurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(ChatResponse{
			Error: &Error{Message: "rate limited", Type: "rate_limit"},
		})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.SimpleChat(context.Background(), "hello", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}

func TestClient_RejectsEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ChatResponse{Model: "test-model"})
	}))
	defer server.Close()

	client, err := NewClient(testConfig(server.URL))
	require.NoError(t, err)

	_, err = client.SimpleChat(context.Background(), "hello", "")
	require.Error(t, err)
}
