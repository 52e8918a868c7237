package wework

import "errors"

// 回调处理过程中的错误分类，HTTP 层通过 errors.Is 映射状态码
var (
	// ErrAuthentication 签名验证失败
	ErrAuthentication = errors.New("authentication failure")

	// ErrMalformedEnvelope 密文无法 Base64 解码或长度不是 32 的整数倍
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrDecryption AES 解密后 PKCS#7 填充非法
	ErrDecryption = errors.New("decryption failure")

	// ErrFrameCorrupt 明文帧长度字段与实际数据不符
	ErrFrameCorrupt = errors.New("frame corrupt")

	// ErrReceiverMismatch 明文帧中的 ReceiveId 与配置不一致，通常意味着配置错误
	ErrReceiverMismatch = errors.New("receiver id mismatch")

	// ErrUnknownMessageType MsgType 缺失或无法识别，可恢复：回调以空应答结束
	ErrUnknownMessageType = errors.New("unknown message type")

	// ErrMalformedMessage 明文 XML 无法解析或字段类型不合法
	ErrMalformedMessage = errors.New("malformed message")

	// ErrInvalidReply 应用返回的回复消息缺少必填字段
	ErrInvalidReply = errors.New("invalid reply")

	// ErrConfiguration 启动配置非法（密钥长度等），进程不应对外服务
	ErrConfiguration = errors.New("configuration error")
)

// ErrInvalidSignature 签名验证失败错误
var ErrInvalidSignature = ErrAuthentication
