package ai

import "context"

//go:generate mockgen -destination=mocks/mock_ai.go -package=mocks go-wecom-gateway/internal/ai Service

// Service AI 助手服务接口
type Service interface {
	// SendMessage 将用户消息发送给 AI 助手并等待回复
	SendMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}
