package ai

// ChatRequest AI 助手请求
type ChatRequest struct {
	UserID  string `json:"user_id"`
	Content string `json:"content"`
	Source  string `json:"source"` // "wework"
	MsgID   string `json:"msg_id,omitempty"`
	AgentID int64  `json:"agent_id,omitempty"`
}

// ChatResponse AI 助手响应，Reply 为空表示不回复
type ChatResponse struct {
	Reply string `json:"reply"`
}

// SourceWeWork 来自企业微信回调的请求
const SourceWeWork = "wework"
