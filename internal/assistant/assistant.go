package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-wecom-gateway/internal/ai"
	"go-wecom-gateway/internal/wework"
)

//go:generate mockgen -destination=mocks/mock_assistant.go -package=mocks go-wecom-gateway/internal/assistant Notifier

// activeReplyTimeout 主动回复模式下单条消息的处理上限
const activeReplyTimeout = 60 * time.Second

// Notifier 通过应用消息主动推送文本
type Notifier interface {
	SendText(ctx context.Context, toUser, content string) error
}

// Option 配置 Assistant
type Option func(*Assistant)

// WithWelcomeText 成员进入应用时回复的欢迎语
func WithWelcomeText(text string) Option {
	return func(a *Assistant) { a.welcome = text }
}

// WithActiveReply 文本消息改为异步处理并通过 Notifier 推送，回调直接应答 success
func WithActiveReply(n Notifier) Option {
	return func(a *Assistant) { a.notifier = n }
}

// Assistant 企业微信应用：文本转发给 AI 助手，图片原样回显
// ai 为 nil 时文本原样回显
type Assistant struct {
	ai       ai.Service
	notifier Notifier
	welcome  string
	logger   *slog.Logger
	wg       sync.WaitGroup
}

var _ wework.Handler = (*Assistant)(nil)

// New 创建应用处理器
func New(aiSvc ai.Service, logger *slog.Logger, opts ...Option) *Assistant {
	a := &Assistant{ai: aiSvc, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handle 实现 wework.Handler
func (a *Assistant) Handle(ctx context.Context, msg *wework.Message) (wework.Reply, error) {
	switch body := msg.Body.(type) {
	case *wework.Text:
		if a.notifier != nil {
			a.replyLater(ctx, msg, body.Content)
			return nil, nil
		}
		answer, err := a.answer(ctx, msg, body.Content)
		if err != nil || answer == "" {
			return nil, err
		}
		return &wework.TextReply{Content: answer}, nil

	case *wework.Image:
		return &wework.ImageReply{MediaID: body.MediaID}, nil

	case *wework.Event:
		if body.Event == wework.EventEnterAgent && a.welcome != "" {
			return &wework.TextReply{Content: a.welcome}, nil
		}
		a.logger.Debug("event ignored", "event", body.Event, "from_user", msg.FromUserName)
	}

	return nil, nil
}

// Wait 等待主动回复的后台任务结束
func (a *Assistant) Wait() {
	a.wg.Wait()
}

func (a *Assistant) answer(ctx context.Context, msg *wework.Message, content string) (string, error) {
	if a.ai == nil {
		return content, nil
	}

	resp, err := a.ai.SendMessage(ctx, ai.ChatRequest{
		UserID:  msg.FromUserName,
		Content: content,
		Source:  ai.SourceWeWork,
		MsgID:   msg.MsgID,
		AgentID: msg.AgentID,
	})
	if err != nil {
		return "", fmt.Errorf("ask ai: %w", err)
	}
	return resp.Reply, nil
}

// replyLater 脱离请求生命周期处理消息，企业微信要求回调在 5 秒内应答
func (a *Assistant) replyLater(ctx context.Context, msg *wework.Message, content string) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), activeReplyTimeout)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer cancel()

		answer, err := a.answer(bg, msg, content)
		if err != nil {
			a.logger.Error("active reply failed", "msg_id", msg.MsgID, "from_user", msg.FromUserName, "error", err)
			return
		}
		if answer == "" {
			return
		}
		if err := a.notifier.SendText(bg, msg.FromUserName, answer); err != nil {
			a.logger.Error("send active reply failed", "msg_id", msg.MsgID, "from_user", msg.FromUserName, "error", err)
		}
	}()
}
