package wework

import (
	"encoding/xml"
)

// CallbackQuery 回调请求的 URL 查询参数
type CallbackQuery struct {
	MsgSignature string
	Timestamp    string
	Nonce        string
	Echostr      string // 仅 GET 验证时使用
}

// EncryptedBody POST 请求的加密 XML 消息体
type EncryptedBody struct {
	XMLName    xml.Name `xml:"xml"`
	ToUserName string   `xml:"ToUserName"`
	AgentID    string   `xml:"AgentID"`
	Encrypt    string   `xml:"Encrypt"`
}

// ReplyEnvelope 被动回复的加密 XML 包
type ReplyEnvelope struct {
	XMLName      xml.Name `xml:"xml"`
	Encrypt      string   `xml:"Encrypt"`
	MsgSignature string   `xml:"MsgSignature"`
	TimeStamp    string   `xml:"TimeStamp"`
	Nonce        string   `xml:"Nonce"`
}

// EmptyAck 无需回复时返回给企业微信的固定应答
var EmptyAck = []byte("success")
