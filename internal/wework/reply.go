package wework

// maxNewsArticles 图文回复最多包含的文章数
const maxNewsArticles = 8

// Reply 被动回复消息，由 TextReply、ImageReply、VoiceReply、VideoReply、NewsReply 实现
type Reply interface {
	replyType() MsgType
}

// TextReply 文本回复
type TextReply struct {
	Content string
}

// ImageReply 图片回复
type ImageReply struct {
	MediaID string
}

// VoiceReply 语音回复
type VoiceReply struct {
	MediaID string
}

// VideoReply 视频回复
type VideoReply struct {
	MediaID     string
	Title       string
	Description string
}

// NewsReply 图文回复
type NewsReply struct {
	Articles []Article
}

// Article 图文回复中的单篇文章
type Article struct {
	Title       string
	Description string
	PicURL      string
	URL         string
}

func (*TextReply) replyType() MsgType  { return MsgTypeText }
func (*ImageReply) replyType() MsgType { return MsgTypeImage }
func (*VoiceReply) replyType() MsgType { return MsgTypeVoice }
func (*VideoReply) replyType() MsgType { return MsgTypeVideo }
func (*NewsReply) replyType() MsgType  { return MsgTypeNews }
