package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go-wecom-gateway/internal/ai"
	"go-wecom-gateway/internal/shared"
)

// AIClient AI 助手 HTTP 客户端
type AIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ ai.Service = (*AIClient)(nil)

// NewAIClient 创建 AI HTTP 客户端
func NewAIClient(cfg shared.AIConfig, logger *slog.Logger) *AIClient {
	return &AIClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger,
	}
}

// SendMessage 实现 ai.Service 接口，POST {base_url}/chat
// 失败直接返回，由调用方决定是否回复用户
func (c *AIClient) SendMessage(ctx context.Context, req ai.ChatRequest) (*ai.ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.Warn("AI backend returned non-200",
			"user_id", req.UserID,
			"status", resp.StatusCode,
		)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp ai.ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &chatResp, nil
}
