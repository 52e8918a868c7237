package wework

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

//go:generate mockgen -destination=mocks/mock_wework.go -package=mocks go-wecom-gateway/internal/wework Crypto,Handler,Service

// Handler 应用能力：处理一条解密后的消息，返回可选的被动回复
// 返回 nil Reply 表示不回复
type Handler interface {
	Handle(ctx context.Context, msg *Message) (Reply, error)
}

// HandlerFunc 函数形式的 Handler
type HandlerFunc func(ctx context.Context, msg *Message) (Reply, error)

// Handle 调用 f(ctx, msg)
func (f HandlerFunc) Handle(ctx context.Context, msg *Message) (Reply, error) {
	return f(ctx, msg)
}

// Service 企业微信回调领域服务接口
type Service interface {
	// VerifyURL 处理 GET 请求的 URL 验证
	VerifyURL(ctx context.Context, q CallbackQuery) (string, error)

	// HandleCallback 处理 POST 请求的消息回调，返回响应体
	// 无需回复时返回 EmptyAck
	HandleCallback(ctx context.Context, q CallbackQuery, body []byte) ([]byte, error)
}

// Option 配置 Service 的可选项
type Option func(*serviceImpl)

// WithClock 替换回复使用的时间源
func WithClock(now func() time.Time) Option {
	return func(s *serviceImpl) { s.now = now }
}

// WithNonceFunc 替换回复使用的随机串生成函数
func WithNonceFunc(nonce func() string) Option {
	return func(s *serviceImpl) { s.nonce = nonce }
}

// serviceImpl Service 接口的实现
type serviceImpl struct {
	crypto  Crypto
	handler Handler
	logger  *slog.Logger
	now     func() time.Time
	nonce   func() string
}

// NewService 创建企业微信回调领域服务实例
func NewService(crypto Crypto, handler Handler, logger *slog.Logger, opts ...Option) Service {
	s := &serviceImpl{
		crypto:  crypto,
		handler: handler,
		logger:  logger,
		now:     time.Now,
		nonce:   randomNonce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyURL 处理企业微信 URL 验证请求
// 1. 验证签名 2. 解密 echostr 3. 返回明文
func (s *serviceImpl) VerifyURL(ctx context.Context, q CallbackQuery) (string, error) {
	echostr := q.Echostr
	if !s.crypto.VerifySignature(q.MsgSignature, q.Timestamp, q.Nonce, echostr) {
		// 未转义的 "+" 经过查询串解析会变成空格
		restored := strings.ReplaceAll(echostr, " ", "+")
		if restored == echostr || !s.crypto.VerifySignature(q.MsgSignature, q.Timestamp, q.Nonce, restored) {
			return "", ErrAuthentication
		}
		echostr = restored
	}

	plaintext, err := s.crypto.Decrypt(echostr)
	if err != nil {
		return "", fmt.Errorf("decrypt echostr: %w", err)
	}

	return string(plaintext), nil
}

// HandleCallback 处理企业微信消息回调
// 1. 解析加密 XML 2. 验证签名 3. 解密 4. 解析明文 XML 5. 调用应用 6. 加密签名回复
func (s *serviceImpl) HandleCallback(ctx context.Context, q CallbackQuery, body []byte) ([]byte, error) {
	// 1. 解析加密 XML
	var encBody EncryptedBody
	if err := xml.Unmarshal(body, &encBody); err != nil {
		return nil, fmt.Errorf("%w: unmarshal encrypted body: %w", ErrMalformedEnvelope, err)
	}
	if encBody.Encrypt == "" {
		return nil, fmt.Errorf("%w: missing Encrypt", ErrMalformedEnvelope)
	}

	// 2. 验证签名
	if !s.crypto.VerifySignature(q.MsgSignature, q.Timestamp, q.Nonce, encBody.Encrypt) {
		return nil, ErrAuthentication
	}

	// 3. 解密消息
	plaintext, err := s.crypto.Decrypt(encBody.Encrypt)
	if err != nil {
		return nil, fmt.Errorf("decrypt message: %w", err)
	}

	// 4. 解析明文 XML
	msg, err := DecodeMessage(plaintext)
	if errors.Is(err, ErrUnknownMessageType) {
		s.logger.Info("ignoring message of unknown type",
			"msg_type", msg.MsgType,
			"from_user", msg.FromUserName,
		)
		return EmptyAck, nil
	}
	if err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}

	// 5. 调用应用
	reply, err := s.handler.Handle(ctx, msg)
	if err != nil {
		s.logger.Error("handler failed",
			"msg_type", msg.MsgType,
			"msg_id", msg.MsgID,
			"from_user", msg.FromUserName,
			"error", err,
		)
		return EmptyAck, nil
	}
	if reply == nil {
		return EmptyAck, nil
	}

	// 6. 编码、加密并签名回复，收发方对调
	return s.sealReply(reply, msg.FromUserName, msg.ToUserName)
}

func (s *serviceImpl) sealReply(reply Reply, toUser, fromUser string) ([]byte, error) {
	now := s.now().Unix()
	plain, err := EncodeReply(reply, toUser, fromUser, now)
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}

	encrypted, err := s.crypto.Encrypt(plain)
	if err != nil {
		return nil, fmt.Errorf("encrypt reply: %w", err)
	}

	timestamp := strconv.FormatInt(now, 10)
	nonce := s.nonce()
	out, err := xml.Marshal(ReplyEnvelope{
		Encrypt:      encrypted,
		MsgSignature: s.crypto.Sign(timestamp, nonce, encrypted),
		TimeStamp:    timestamp,
		Nonce:        nonce,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal reply envelope: %w", err)
	}
	return out, nil
}

func randomNonce() string {
	return strconv.FormatUint(uint64(rand.Uint32()), 10)
}
