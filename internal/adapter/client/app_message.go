package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// 应用消息类型
const (
	AppMsgText     = "text"
	AppMsgImage    = "image"
	AppMsgFile     = "file"
	AppMsgMarkdown = "markdown"
)

// MaxDuplicateCheckInterval 重复消息检查的最大时间间隔
const MaxDuplicateCheckInterval = 4 * time.Hour

// ErrInvalidAppMessage 应用消息缺少接收者或字段非法
var ErrInvalidAppMessage = errors.New("invalid app message")

// AppMessage 通过 message/send 主动发送的应用消息
type AppMessage struct {
	ToUsers   []string
	ToParties []string
	ToTags    []string
	AgentID   int64
	MsgType   string
	Content   string // text / markdown
	MediaID   string // image / file

	Safe                   bool
	EnableIDTrans          bool
	EnableDuplicateCheck   bool
	DuplicateCheckInterval time.Duration
}

// NewTextMessage 文本消息
func NewTextMessage(content string) *AppMessage {
	return &AppMessage{MsgType: AppMsgText, Content: content}
}

// NewMarkdownMessage markdown 消息
func NewMarkdownMessage(content string) *AppMessage {
	return &AppMessage{MsgType: AppMsgMarkdown, Content: content}
}

// NewImageMessage 图片消息，mediaID 由 media/upload 获得
func NewImageMessage(mediaID string) *AppMessage {
	return &AppMessage{MsgType: AppMsgImage, MediaID: mediaID}
}

// NewFileMessage 文件消息
func NewFileMessage(mediaID string) *AppMessage {
	return &AppMessage{MsgType: AppMsgFile, MediaID: mediaID}
}

// ToUser 追加接收成员，"@all" 表示应用可见范围内全部成员
func (m *AppMessage) ToUser(users ...string) *AppMessage {
	m.ToUsers = append(m.ToUsers, users...)
	return m
}

// ToParty 追加接收部门
func (m *AppMessage) ToParty(parties ...string) *AppMessage {
	m.ToParties = append(m.ToParties, parties...)
	return m
}

// ToTag 追加接收标签
func (m *AppMessage) ToTag(tags ...string) *AppMessage {
	m.ToTags = append(m.ToTags, tags...)
	return m
}

// WithAgentID 指定发送应用
func (m *AppMessage) WithAgentID(agentID int64) *AppMessage {
	m.AgentID = agentID
	return m
}

// WithSafe 保密消息
func (m *AppMessage) WithSafe(safe bool) *AppMessage {
	m.Safe = safe
	return m
}

// WithIDTrans 开启 id 转译
func (m *AppMessage) WithIDTrans(enable bool) *AppMessage {
	m.EnableIDTrans = enable
	return m
}

// WithDuplicateCheck 开启重复消息检查，interval 为 0 时使用平台默认的 1800 秒
func (m *AppMessage) WithDuplicateCheck(interval time.Duration) *AppMessage {
	m.EnableDuplicateCheck = true
	m.DuplicateCheckInterval = interval
	return m
}

// Validate 检查接收者、消息类型与内容
func (m *AppMessage) Validate() error {
	if len(m.ToUsers) == 0 && len(m.ToParties) == 0 && len(m.ToTags) == 0 {
		return fmt.Errorf("%w: receiver can not be empty", ErrInvalidAppMessage)
	}
	if m.AgentID <= 0 {
		return fmt.Errorf("%w: agentid must be positive", ErrInvalidAppMessage)
	}

	switch m.MsgType {
	case AppMsgText, AppMsgMarkdown:
		if m.Content == "" {
			return fmt.Errorf("%w: %s content is empty", ErrInvalidAppMessage, m.MsgType)
		}
	case AppMsgImage, AppMsgFile:
		if m.MediaID == "" {
			return fmt.Errorf("%w: %s media_id is empty", ErrInvalidAppMessage, m.MsgType)
		}
	default:
		return fmt.Errorf("%w: unsupported msgtype %q", ErrInvalidAppMessage, m.MsgType)
	}

	if m.DuplicateCheckInterval < 0 || m.DuplicateCheckInterval > MaxDuplicateCheckInterval {
		return fmt.Errorf("%w: duplicate_check_interval must be within %s", ErrInvalidAppMessage, MaxDuplicateCheckInterval)
	}
	return nil
}

type contentBody struct {
	Content string `json:"content"`
}

type mediaBody struct {
	MediaID string `json:"media_id"`
}

type appMessageJSON struct {
	ToUser                 string       `json:"touser,omitempty"`
	ToParty                string       `json:"toparty,omitempty"`
	ToTag                  string       `json:"totag,omitempty"`
	MsgType                string       `json:"msgtype"`
	AgentID                int64        `json:"agentid"`
	Text                   *contentBody `json:"text,omitempty"`
	Markdown               *contentBody `json:"markdown,omitempty"`
	Image                  *mediaBody   `json:"image,omitempty"`
	File                   *mediaBody   `json:"file,omitempty"`
	Safe                   int          `json:"safe,omitempty"`
	EnableIDTrans          int          `json:"enable_id_trans,omitempty"`
	EnableDuplicateCheck   int          `json:"enable_duplicate_check,omitempty"`
	DuplicateCheckInterval int64        `json:"duplicate_check_interval,omitempty"`
}

// MarshalJSON 输出 message/send 请求体，接收者列表以 "|" 连接
func (m *AppMessage) MarshalJSON() ([]byte, error) {
	out := appMessageJSON{
		ToUser:                 strings.Join(m.ToUsers, "|"),
		ToParty:                strings.Join(m.ToParties, "|"),
		ToTag:                  strings.Join(m.ToTags, "|"),
		MsgType:                m.MsgType,
		AgentID:                m.AgentID,
		Safe:                   boolToInt(m.Safe),
		EnableIDTrans:          boolToInt(m.EnableIDTrans),
		EnableDuplicateCheck:   boolToInt(m.EnableDuplicateCheck),
		DuplicateCheckInterval: int64(m.DuplicateCheckInterval / time.Second),
	}

	switch m.MsgType {
	case AppMsgText:
		out.Text = &contentBody{Content: m.Content}
	case AppMsgMarkdown:
		out.Markdown = &contentBody{Content: m.Content}
	case AppMsgImage:
		out.Image = &mediaBody{MediaID: m.MediaID}
	case AppMsgFile:
		out.File = &mediaBody{MediaID: m.MediaID}
	}

	return json.Marshal(out)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
