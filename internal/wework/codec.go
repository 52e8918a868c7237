package wework

import (
	"fmt"
	"strconv"

	"github.com/beevik/etree"
)

// DecodeMessage 将解密后的明文 XML 解析为 Message
//
// MsgType 缺失或无法识别时返回已解析出消息头的 Message 和 ErrUnknownMessageType，
// 调用方可以据此记录日志后忽略该消息。
func DecodeMessage(data []byte) (*Message, error) {
	fields, err := flattenXML(data)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		ToUserName:   fields["ToUserName"],
		FromUserName: fields["FromUserName"],
		MsgType:      MsgType(fields["MsgType"]),
		MsgID:        fields["MsgId"],
		Fields:       fields,
	}
	if msg.CreateTime, err = parseInt(fields, "CreateTime"); err != nil {
		return nil, err
	}
	if msg.AgentID, err = parseInt(fields, "AgentID"); err != nil {
		return nil, err
	}

	switch msg.MsgType {
	case MsgTypeText:
		msg.Body = &Text{Content: fields["Content"]}
	case MsgTypeImage:
		msg.Body = &Image{PicURL: fields["PicUrl"], MediaID: fields["MediaId"]}
	case MsgTypeVoice:
		msg.Body = &Voice{MediaID: fields["MediaId"], Format: fields["Format"]}
	case MsgTypeVideo:
		msg.Body = &Video{MediaID: fields["MediaId"], ThumbMediaID: fields["ThumbMediaId"]}
	case MsgTypeShortVideo:
		msg.Body = &ShortVideo{MediaID: fields["MediaId"], ThumbMediaID: fields["ThumbMediaId"]}
	case MsgTypeLocation:
		loc := &Location{Label: fields["Label"], AppType: fields["AppType"]}
		if loc.Latitude, err = parseFloat(fields, "Location_X"); err != nil {
			return nil, err
		}
		if loc.Longitude, err = parseFloat(fields, "Location_Y"); err != nil {
			return nil, err
		}
		scale, err := parseInt(fields, "Scale")
		if err != nil {
			return nil, err
		}
		loc.Scale = int(scale)
		msg.Body = loc
	case MsgTypeLink:
		msg.Body = &Link{
			Title:       fields["Title"],
			Description: fields["Description"],
			URL:         fields["Url"],
			PicURL:      fields["PicUrl"],
		}
	case MsgTypeEvent:
		ev := &Event{
			Event:        fields["Event"],
			EventKey:     fields["EventKey"],
			ChangeType:   fields["ChangeType"],
			TaskID:       fields["TaskId"],
			CardType:     fields["CardType"],
			ResponseCode: fields["ResponseCode"],
		}
		if ev.Latitude, err = parseFloat(fields, "Latitude"); err != nil {
			return nil, err
		}
		if ev.Longitude, err = parseFloat(fields, "Longitude"); err != nil {
			return nil, err
		}
		if ev.Precision, err = parseFloat(fields, "Precision"); err != nil {
			return nil, err
		}
		msg.Body = ev
	case "":
		return msg, fmt.Errorf("%w: missing MsgType", ErrUnknownMessageType)
	default:
		return msg, fmt.Errorf("%w: %q", ErrUnknownMessageType, msg.MsgType)
	}

	return msg, nil
}

// flattenXML 把根节点的直接子元素展开为 标签 → 文本
func flattenXML(data []byte) (map[string]string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, fmt.Errorf("%w: parse xml: %w", ErrMalformedMessage, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: missing root element", ErrMalformedMessage)
	}

	fields := make(map[string]string, len(root.Child))
	for _, el := range root.ChildElements() {
		fields[el.Tag] = el.Text()
	}
	return fields, nil
}

func parseInt(fields map[string]string, name string) (int64, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not an integer", ErrMalformedMessage, name)
	}
	return v, nil
}

func parseFloat(fields map[string]string, name string) (float64, error) {
	raw, ok := fields[name]
	if !ok || raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s is not a number", ErrMalformedMessage, name)
	}
	return v, nil
}

// EncodeReply 将回复消息编码为被动回复明文 XML
// toUser 为原消息的 FromUserName，fromUser 为原消息的 ToUserName
func EncodeReply(r Reply, toUser, fromUser string, createTime int64) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: nil reply", ErrInvalidReply)
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("xml")
	addText(root, "ToUserName", toUser)
	addText(root, "FromUserName", fromUser)
	addText(root, "CreateTime", strconv.FormatInt(createTime, 10))
	addText(root, "MsgType", string(r.replyType()))

	switch v := r.(type) {
	case *TextReply:
		if v.Content == "" {
			return nil, fmt.Errorf("%w: text content is empty", ErrInvalidReply)
		}
		addText(root, "Content", v.Content)
	case *ImageReply:
		if v.MediaID == "" {
			return nil, fmt.Errorf("%w: image media id is empty", ErrInvalidReply)
		}
		addText(root.CreateElement("Image"), "MediaId", v.MediaID)
	case *VoiceReply:
		if v.MediaID == "" {
			return nil, fmt.Errorf("%w: voice media id is empty", ErrInvalidReply)
		}
		addText(root.CreateElement("Voice"), "MediaId", v.MediaID)
	case *VideoReply:
		if v.MediaID == "" {
			return nil, fmt.Errorf("%w: video media id is empty", ErrInvalidReply)
		}
		video := root.CreateElement("Video")
		addText(video, "MediaId", v.MediaID)
		addText(video, "Title", v.Title)
		addText(video, "Description", v.Description)
	case *NewsReply:
		if len(v.Articles) == 0 || len(v.Articles) > maxNewsArticles {
			return nil, fmt.Errorf("%w: news must have 1 to %d articles, got %d",
				ErrInvalidReply, maxNewsArticles, len(v.Articles))
		}
		addText(root, "ArticleCount", strconv.Itoa(len(v.Articles)))
		articles := root.CreateElement("Articles")
		for _, a := range v.Articles {
			item := articles.CreateElement("item")
			addText(item, "Title", a.Title)
			addText(item, "Description", a.Description)
			addText(item, "PicUrl", a.PicURL)
			addText(item, "Url", a.URL)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported reply %T", ErrInvalidReply, r)
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("write reply xml: %w", err)
	}
	return out, nil
}

// EncodeMessage 将 Message 编码为企业微信推送格式的明文 XML，是 DecodeMessage 的逆操作
func EncodeMessage(msg *Message) ([]byte, error) {
	if msg == nil || msg.Body == nil {
		return nil, fmt.Errorf("%w: message has no body", ErrUnknownMessageType)
	}

	doc := etree.NewDocument()
	root := doc.CreateElement("xml")
	addText(root, "ToUserName", msg.ToUserName)
	addText(root, "FromUserName", msg.FromUserName)
	addText(root, "CreateTime", strconv.FormatInt(msg.CreateTime, 10))
	addText(root, "MsgType", string(msg.Body.msgType()))

	switch b := msg.Body.(type) {
	case *Text:
		addText(root, "Content", b.Content)
	case *Image:
		addText(root, "PicUrl", b.PicURL)
		addText(root, "MediaId", b.MediaID)
	case *Voice:
		addText(root, "MediaId", b.MediaID)
		addText(root, "Format", b.Format)
	case *Video:
		addText(root, "MediaId", b.MediaID)
		addText(root, "ThumbMediaId", b.ThumbMediaID)
	case *ShortVideo:
		addText(root, "MediaId", b.MediaID)
		addText(root, "ThumbMediaId", b.ThumbMediaID)
	case *Location:
		addText(root, "Location_X", formatFloat(b.Latitude))
		addText(root, "Location_Y", formatFloat(b.Longitude))
		addText(root, "Scale", strconv.Itoa(b.Scale))
		addText(root, "Label", b.Label)
		addOptional(root, "AppType", b.AppType)
	case *Link:
		addText(root, "Title", b.Title)
		addText(root, "Description", b.Description)
		addText(root, "Url", b.URL)
		addText(root, "PicUrl", b.PicURL)
	case *Event:
		addText(root, "Event", b.Event)
		addOptional(root, "EventKey", b.EventKey)
		if b.Event == EventLocation {
			addText(root, "Latitude", formatFloat(b.Latitude))
			addText(root, "Longitude", formatFloat(b.Longitude))
			addText(root, "Precision", formatFloat(b.Precision))
		}
		addOptional(root, "ChangeType", b.ChangeType)
		addOptional(root, "TaskId", b.TaskID)
		addOptional(root, "CardType", b.CardType)
		addOptional(root, "ResponseCode", b.ResponseCode)
	default:
		return nil, fmt.Errorf("%w: unsupported body %T", ErrUnknownMessageType, msg.Body)
	}

	addOptional(root, "MsgId", msg.MsgID)
	if msg.AgentID != 0 {
		addText(root, "AgentID", strconv.FormatInt(msg.AgentID, 10))
	}

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("write message xml: %w", err)
	}
	return out, nil
}

func addText(parent *etree.Element, tag, text string) {
	parent.CreateElement(tag).SetText(text)
}

func addOptional(parent *etree.Element, tag, text string) {
	if text != "" {
		addText(parent, tag, text)
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
