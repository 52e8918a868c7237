package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"go-wecom-gateway/internal/shared"
)

const (
	// tokenSafetyMargin 提前于 expires_in 失效，避免临界时刻使用过期 token
	tokenSafetyMargin = 5 * time.Minute

	errCodeInvalidToken = 40014
	errCodeTokenExpired = 42001
)

// MediaType 临时素材类型
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVoice MediaType = "voice"
	MediaVideo MediaType = "video"
	MediaFile  MediaType = "file"
)

// ParseMediaType 校验素材类型
func ParseMediaType(s string) (MediaType, error) {
	switch t := MediaType(s); t {
	case MediaImage, MediaVoice, MediaVideo, MediaFile:
		return t, nil
	}
	return "", fmt.Errorf("unsupported media type %q", s)
}

// APIError 企业微信服务端接口返回 errcode != 0
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wework api error %d: %s", e.Code, e.Msg)
}

// TokenInvalid access_token 无效或已过期
func (e *APIError) TokenInvalid() bool {
	return e.Code == errCodeInvalidToken || e.Code == errCodeTokenExpired
}

type apiStatus struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (s *apiStatus) status() *apiStatus { return s }

func (s *apiStatus) err() error {
	if s.ErrCode == 0 {
		return nil
	}
	return &APIError{Code: s.ErrCode, Msg: s.ErrMsg}
}

type apiResult interface {
	status() *apiStatus
}

type tokenResponse struct {
	apiStatus
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type uploadResponse struct {
	apiStatus
	Type      string `json:"type"`
	MediaID   string `json:"media_id"`
	CreatedAt string `json:"created_at"`
	URL       string `json:"url"`
}

type sendResponse struct {
	apiStatus
	InvalidUser    string `json:"invaliduser"`
	InvalidParty   string `json:"invalidparty"`
	InvalidTag     string `json:"invalidtag"`
	UnlicensedUser string `json:"unlicenseduser"`
	MsgID          string `json:"msgid"`
	ResponseCode   string `json:"response_code"`
}

// MediaUpload media/upload 的结果，media_id 三天内有效
type MediaUpload struct {
	Type      MediaType
	MediaID   string
	CreatedAt time.Time
}

// SendResult message/send 的结果，部分接收者非法时接口仍返回成功
type SendResult struct {
	MsgID          string
	InvalidUser    string
	InvalidParty   string
	InvalidTag     string
	UnlicensedUser string
	ResponseCode   string
}

// WeWorkClient 企业微信服务端 API 客户端
type WeWorkClient struct {
	baseURL    string
	corpID     string
	corpSecret string
	agentID    int64
	httpClient *http.Client
	tokens     TokenStore
	group      singleflight.Group
	logger     *slog.Logger
}

// NewWeWorkClient 创建企业微信 API 客户端，httpClient 为 nil 时使用 10 秒超时的默认客户端
func NewWeWorkClient(cfg shared.WeWorkConfig, tokens TokenStore, httpClient *http.Client, logger *slog.Logger) *WeWorkClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &WeWorkClient{
		baseURL:    cfg.APIBaseURL,
		corpID:     cfg.CorpID,
		corpSecret: cfg.CorpSecret,
		agentID:    cfg.AgentID,
		httpClient: httpClient,
		tokens:     tokens,
		logger:     logger,
	}
}

func (c *WeWorkClient) tokenKey() string {
	return c.corpID + ":" + strconv.FormatInt(c.agentID, 10)
}

// AccessToken 返回缓存的 access_token，未命中时从 gettoken 获取
// 并发未命中只会发出一次请求
func (c *WeWorkClient) AccessToken(ctx context.Context) (string, error) {
	key := c.tokenKey()

	token, ok, err := c.tokens.Get(ctx, key)
	if err != nil {
		c.logger.Warn("token cache read failed", "error", err)
	}
	if ok {
		return token, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.fetchToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *WeWorkClient) fetchToken(ctx context.Context) (string, error) {
	if c.corpSecret == "" {
		return "", errors.New("gettoken: wework.corp_secret is not configured")
	}

	q := url.Values{}
	q.Set("corpid", c.corpID)
	q.Set("corpsecret", c.corpSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/gettoken?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	var resp tokenResponse
	if err := c.do(req, &resp); err != nil {
		return "", fmt.Errorf("gettoken: %w", err)
	}
	if err := resp.err(); err != nil {
		return "", fmt.Errorf("gettoken: %w", err)
	}

	expires := time.Duration(resp.ExpiresIn) * time.Second
	ttl := expires - tokenSafetyMargin
	if ttl <= 0 {
		ttl = expires / 2
	}
	if ttl > 0 {
		if err := c.tokens.Set(ctx, c.tokenKey(), resp.AccessToken, ttl); err != nil {
			c.logger.Warn("token cache write failed", "error", err)
		}
	}

	c.logger.Info("access token refreshed", "corp_id", c.corpID, "expires_in", resp.ExpiresIn)
	return resp.AccessToken, nil
}

// UploadMedia 上传临时素材，multipart 字段名为 media
func (c *WeWorkClient) UploadMedia(ctx context.Context, mediaType MediaType, filename string, r io.Reader) (*MediaUpload, error) {
	if _, err := ParseMediaType(string(mediaType)); err != nil {
		return nil, fmt.Errorf("media/upload: %w", err)
	}

	body, contentType, err := multipartBody(filename, r)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("type", string(mediaType))

	var resp uploadResponse
	if err := c.post(ctx, "/media/upload", q, contentType, body, &resp); err != nil {
		return nil, err
	}

	created, _ := strconv.ParseInt(resp.CreatedAt, 10, 64)
	return &MediaUpload{
		Type:      MediaType(resp.Type),
		MediaID:   resp.MediaID,
		CreatedAt: time.Unix(created, 0),
	}, nil
}

// UploadImage 上传图片，返回永久有效的图片 URL
func (c *WeWorkClient) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	body, contentType, err := multipartBody(filename, r)
	if err != nil {
		return "", err
	}

	var resp uploadResponse
	if err := c.post(ctx, "/media/uploadimg", url.Values{}, contentType, body, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// SendMessage 发送应用消息，未指定 agentid 时使用配置中的应用
func (c *WeWorkClient) SendMessage(ctx context.Context, msg *AppMessage) (*SendResult, error) {
	m := *msg
	if m.AgentID == 0 {
		m.AgentID = c.agentID
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("marshal app message: %w", err)
	}

	var resp sendResponse
	if err := c.post(ctx, "/message/send", url.Values{}, "application/json", bytes.NewReader(payload), &resp); err != nil {
		return nil, err
	}

	if resp.InvalidUser != "" || resp.InvalidParty != "" || resp.InvalidTag != "" {
		c.logger.Warn("message sent with invalid receivers",
			"msg_id", resp.MsgID,
			"invalid_user", resp.InvalidUser,
			"invalid_party", resp.InvalidParty,
			"invalid_tag", resp.InvalidTag,
		)
	}

	return &SendResult{
		MsgID:          resp.MsgID,
		InvalidUser:    resp.InvalidUser,
		InvalidParty:   resp.InvalidParty,
		InvalidTag:     resp.InvalidTag,
		UnlicensedUser: resp.UnlicensedUser,
		ResponseCode:   resp.ResponseCode,
	}, nil
}

// SendText 向单个成员发送文本消息
func (c *WeWorkClient) SendText(ctx context.Context, toUser, content string) error {
	_, err := c.SendMessage(ctx, NewTextMessage(content).ToUser(toUser))
	return err
}

// post 携带 access_token 调用接口，token 失效时清除缓存，下一次调用重新获取
func (c *WeWorkClient) post(ctx context.Context, path string, q url.Values, contentType string, body io.Reader, out apiResult) error {
	token, err := c.AccessToken(ctx)
	if err != nil {
		return err
	}
	q.Set("access_token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path+"?"+q.Encode(), body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	if err := c.do(req, out); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := out.status().err(); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.TokenInvalid() {
			c.logger.Warn("access token rejected, dropping cache", "path", path, "errcode", apiErr.Code)
			if derr := c.tokens.Delete(ctx, c.tokenKey()); derr != nil {
				c.logger.Warn("token cache delete failed", "error", derr)
			}
		}
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// do 执行请求并解码 JSON 响应
func (c *WeWorkClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func multipartBody(filename string, r io.Reader) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("media", filename)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, "", fmt.Errorf("copy media: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}
