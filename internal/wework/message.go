package wework

// MsgType 消息类型
type MsgType string

// MsgType 消息类型常量
const (
	MsgTypeText       MsgType = "text"
	MsgTypeImage      MsgType = "image"
	MsgTypeVoice      MsgType = "voice"
	MsgTypeVideo      MsgType = "video"
	MsgTypeShortVideo MsgType = "shortvideo"
	MsgTypeLocation   MsgType = "location"
	MsgTypeLink       MsgType = "link"
	MsgTypeEvent      MsgType = "event"
	MsgTypeNews       MsgType = "news"
)

// 常见事件类型
const (
	EventSubscribe     = "subscribe"
	EventUnsubscribe   = "unsubscribe"
	EventEnterAgent    = "enter_agent"
	EventLocation      = "LOCATION"
	EventClick         = "click"
	EventView          = "view"
	EventChangeContact = "change_contact"
	EventTemplateCard  = "template_card_event"
)

// Message 解密后的企业微信消息
// Body 为按 MsgType 区分的具体内容，只会是本包定义的几种类型之一
type Message struct {
	ToUserName   string
	FromUserName string
	CreateTime   int64
	MsgType      MsgType
	MsgID        string
	AgentID      int64
	Body         Body

	// Fields 明文 XML 根节点下的全部字段（标签 → 文本）
	Fields map[string]string
}

// Body 消息内容，由 Text、Image、Voice、Video、ShortVideo、Location、Link、Event 实现
type Body interface {
	msgType() MsgType
}

// Text 文本消息
type Text struct {
	Content string
}

// Image 图片消息
type Image struct {
	PicURL  string
	MediaID string
}

// Voice 语音消息
type Voice struct {
	MediaID string
	Format  string
}

// Video 视频消息
type Video struct {
	MediaID      string
	ThumbMediaID string
}

// ShortVideo 小视频消息
type ShortVideo struct {
	MediaID      string
	ThumbMediaID string
}

// Location 位置消息
type Location struct {
	Latitude  float64 // Location_X
	Longitude float64 // Location_Y
	Scale     int
	Label     string
	AppType   string
}

// Link 链接消息
type Link struct {
	Title       string
	Description string
	URL         string
	PicURL      string
}

// Event 事件推送，Event 为事件子类型
type Event struct {
	Event    string
	EventKey string

	// 上报地理位置事件
	Latitude  float64
	Longitude float64
	Precision float64

	// 通讯录变更事件
	ChangeType string

	// 模板卡片事件
	TaskID       string
	CardType     string
	ResponseCode string
}

func (*Text) msgType() MsgType       { return MsgTypeText }
func (*Image) msgType() MsgType      { return MsgTypeImage }
func (*Voice) msgType() MsgType      { return MsgTypeVoice }
func (*Video) msgType() MsgType      { return MsgTypeVideo }
func (*ShortVideo) msgType() MsgType { return MsgTypeShortVideo }
func (*Location) msgType() MsgType   { return MsgTypeLocation }
func (*Link) msgType() MsgType       { return MsgTypeLink }
func (*Event) msgType() MsgType      { return MsgTypeEvent }
