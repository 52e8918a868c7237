package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"go-wecom-gateway/internal/wework"
)

// maxCallbackBody 回调消息体上限，企业微信推送的加密 XML 远小于此值
const maxCallbackBody = 1 << 20

// CallbackHandler 企业微信回调 HTTP 处理器
type CallbackHandler struct {
	svc     wework.Service
	logger  *slog.Logger
	metrics *Metrics
}

// NewCallbackHandler 创建回调处理器实例，metrics 可为 nil
func NewCallbackHandler(svc wework.Service, logger *slog.Logger, metrics *Metrics) *CallbackHandler {
	return &CallbackHandler{svc: svc, logger: logger, metrics: metrics}
}

// ServeHTTP 统一处理 GET（URL 验证）和 POST（消息回调）请求
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := uuid.NewString()
	logger := h.logger.With("request_id", requestID)
	w.Header().Set("X-Request-Id", requestID)

	var result string
	switch r.Method {
	case http.MethodGet:
		result = h.handleVerifyURL(w, r, logger)
	case http.MethodPost:
		result = h.handleCallback(w, r, logger)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.metrics.observe(r.Method, result, time.Since(start))
}

// parseQuery 读取回调查询参数，兼容旧版本使用的 signature 参数名
func parseQuery(r *http.Request) wework.CallbackQuery {
	query := r.URL.Query()
	sig := query.Get("msg_signature")
	if sig == "" {
		sig = query.Get("signature")
	}
	return wework.CallbackQuery{
		MsgSignature: sig,
		Timestamp:    query.Get("timestamp"),
		Nonce:        query.Get("nonce"),
		Echostr:      query.Get("echostr"),
	}
}

// handleVerifyURL 处理 GET 请求的 URL 验证
func (h *CallbackHandler) handleVerifyURL(w http.ResponseWriter, r *http.Request, logger *slog.Logger) string {
	q := parseQuery(r)

	plaintext, err := h.svc.VerifyURL(r.Context(), q)
	if err != nil {
		return h.fail(w, logger, q, err)
	}

	logger.Info("URL verification succeeded")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(plaintext))
	return resultReply
}

// handleCallback 处理 POST 请求的消息回调
func (h *CallbackHandler) handleCallback(w http.ResponseWriter, r *http.Request, logger *slog.Logger) string {
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCallbackBody))
	if err != nil {
		logger.Warn("failed to read request body", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request entity too large", http.StatusRequestEntityTooLarge)
			return resultBadRequest
		}
		http.Error(w, "bad request", http.StatusBadRequest)
		return resultBadRequest
	}

	q := parseQuery(r)
	q.Echostr = ""

	resp, err := h.svc.HandleCallback(r.Context(), q, body)
	if err != nil {
		return h.fail(w, logger, q, err)
	}

	if bytes.Equal(resp, wework.EmptyAck) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(resp)
		return resultAck
	}

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(resp)
	return resultReply
}

// fail 按错误分类写回状态码，响应体不包含任何密文或签名
func (h *CallbackHandler) fail(w http.ResponseWriter, logger *slog.Logger, q wework.CallbackQuery, err error) string {
	switch {
	case errors.Is(err, wework.ErrAuthentication):
		logger.Warn("callback signature verification failed",
			"timestamp", q.Timestamp,
			"nonce", q.Nonce,
		)
		http.Error(w, "forbidden", http.StatusForbidden)
		return resultUnauthorized

	case errors.Is(err, wework.ErrReceiverMismatch):
		logger.Error("receiver id mismatch, check wework.corp_id", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return resultReceiverMismatch

	case errors.Is(err, wework.ErrDecryption):
		logger.Warn("callback decryption failed, check wework.encoding_aes_key", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return resultDecryptFailed

	case errors.Is(err, wework.ErrFrameCorrupt):
		logger.Warn("callback plaintext frame corrupt", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return resultFrameCorrupt

	case errors.Is(err, wework.ErrMalformedEnvelope), errors.Is(err, wework.ErrMalformedMessage):
		logger.Warn("malformed callback", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return resultBadRequest

	default:
		logger.Error("callback processing failed", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return resultInternal
	}
}
