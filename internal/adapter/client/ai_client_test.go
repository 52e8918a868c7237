package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-wecom-gateway/internal/ai"
	"go-wecom-gateway/internal/shared"
)

func TestAIClient_SendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req ai.ChatRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, ai.ChatRequest{UserID: "zhangsan", Content: "你好", Source: ai.SourceWeWork, MsgID: "1", AgentID: 1000002}, req)
		writeJSON(w, ai.ChatResponse{Reply: "您好"})
	}))
	defer srv.Close()

	c := NewAIClient(shared.AIConfig{BaseURL: srv.URL + "/", Timeout: time.Second}, discardLogger())
	resp, err := c.SendMessage(context.Background(), ai.ChatRequest{
		UserID:  "zhangsan",
		Content: "你好",
		Source:  ai.SourceWeWork,
		MsgID:   "1",
		AgentID: 1000002,
	})
	require.NoError(t, err)
	assert.Equal(t, "您好", resp.Reply)
}

func TestAIClient_Non200(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewAIClient(shared.AIConfig{BaseURL: srv.URL, Timeout: time.Second}, discardLogger())
	_, err := c.SendMessage(context.Background(), ai.ChatRequest{UserID: "u", Content: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 503")
	assert.Equal(t, 1, calls)
}
