package wework

import (
	"strings"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMessage_TextWithCDATA(t *testing.T) {
	data := []byte(`<xml>
<ToUserName><![CDATA[ww6a112864f8022910]]></ToUserName>
<FromUserName><![CDATA[zhangsan]]></FromUserName>
<CreateTime>1348831860</CreateTime>
<MsgType><![CDATA[text]]></MsgType>
<Content><![CDATA[你好 😀 <b>&amp;]]></Content>
<MsgId>1234567890123456</MsgId>
<AgentID>1000002</AgentID>
</xml>`)

	msg, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, "ww6a112864f8022910", msg.ToUserName)
	assert.Equal(t, "zhangsan", msg.FromUserName)
	assert.Equal(t, int64(1348831860), msg.CreateTime)
	assert.Equal(t, MsgTypeText, msg.MsgType)
	assert.Equal(t, "1234567890123456", msg.MsgID)
	assert.Equal(t, int64(1000002), msg.AgentID)

	text, ok := msg.Body.(*Text)
	require.True(t, ok)
	assert.Equal(t, "你好 😀 <b>&amp;", text.Content)
	assert.Equal(t, "1348831860", msg.Fields["CreateTime"])
}

func TestDecodeMessage_EscapedText(t *testing.T) {
	msg, err := DecodeMessage([]byte(`<xml><MsgType>text</MsgType><Content>a &lt; b &amp;&amp; c</Content></xml>`))
	require.NoError(t, err)
	assert.Equal(t, &Text{Content: "a < b && c"}, msg.Body)
}

func TestDecodeMessage_Event(t *testing.T) {
	data := []byte(`<xml><ToUserName><![CDATA[corp]]></ToUserName><FromUserName><![CDATA[user]]></FromUserName>` +
		`<CreateTime>1408091189</CreateTime><MsgType><![CDATA[event]]></MsgType><Event><![CDATA[LOCATION]]></Event>` +
		`<Latitude>23.104</Latitude><Longitude>113.320</Longitude><Precision>65.000</Precision><AgentID>1</AgentID></xml>`)

	msg, err := DecodeMessage(data)
	require.NoError(t, err)
	assert.Equal(t, &Event{Event: EventLocation, Latitude: 23.104, Longitude: 113.32, Precision: 65}, msg.Body)
}

func TestDecodeMessage_UnknownType(t *testing.T) {
	msg, err := DecodeMessage([]byte(`<xml><FromUserName>user</FromUserName><MsgType>foobar</MsgType></xml>`))
	assert.ErrorIs(t, err, ErrUnknownMessageType)
	require.NotNil(t, msg)
	assert.Equal(t, "user", msg.FromUserName)
	assert.Nil(t, msg.Body)

	_, err = DecodeMessage([]byte(`<xml><FromUserName>user</FromUserName></xml>`))
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestDecodeMessage_Malformed(t *testing.T) {
	tests := map[string]string{
		"mismatched tags":  `<xml><ToUserName>a</xml>`,
		"no root":          ``,
		"bad create time":  `<xml><MsgType>text</MsgType><CreateTime>abc</CreateTime></xml>`,
		"bad agent id":     `<xml><MsgType>text</MsgType><AgentID>x1</AgentID></xml>`,
		"bad location":     `<xml><MsgType>location</MsgType><Location_X>north</Location_X></xml>`,
		"bad event number": `<xml><MsgType>event</MsgType><Latitude>?</Latitude></xml>`,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(input))
			assert.ErrorIs(t, err, ErrMalformedMessage)
		})
	}
}

func TestMessageCodec_RoundTrip(t *testing.T) {
	bodies := []Body{
		&Text{Content: "hi"},
		&Text{Content: "多字节 🎉🚀 emoji & <tags> \"quoted\" 'single'"},
		&Image{PicURL: "https://example.com/a.jpg?x=1&y=2", MediaID: "media-image"},
		&Voice{MediaID: "media-voice", Format: "amr"},
		&Video{MediaID: "media-video", ThumbMediaID: "thumb-video"},
		&ShortVideo{MediaID: "media-short", ThumbMediaID: "thumb-short"},
		&Location{Latitude: 23.134521, Longitude: 113.358803, Scale: 20, Label: "广州市海珠区", AppType: "wxwork"},
		&Link{Title: "标题", Description: "描述", URL: "https://example.com/?a=1&b=2", PicURL: "https://example.com/p.png"},
		&Event{Event: EventClick, EventKey: "menu_1"},
		&Event{Event: EventLocation, Latitude: 23.104, Longitude: 113.32, Precision: 65.5},
		&Event{Event: EventChangeContact, ChangeType: "create_user"},
		&Event{Event: EventTemplateCard, EventKey: "btn", TaskID: "task-1", CardType: "button_interaction", ResponseCode: "code"},
	}

	for _, body := range bodies {
		t.Run(string(body.msgType()), func(t *testing.T) {
			in := &Message{
				ToUserName:   "corp",
				FromUserName: "user",
				CreateTime:   1700000000,
				MsgType:      body.msgType(),
				MsgID:        "7000000000000000001",
				AgentID:      1000002,
				Body:         body,
			}

			data, err := EncodeMessage(in)
			require.NoError(t, err)

			out, err := DecodeMessage(data)
			require.NoError(t, err)
			out.Fields = nil
			assert.Equal(t, in, out)
		})
	}
}

func TestEncodeReply_Text(t *testing.T) {
	data, err := EncodeReply(&TextReply{Content: "a < b & c 😀"}, "user", "corp", 1700000000)
	require.NoError(t, err)
	assert.Contains(t, string(data), "a &lt; b &amp; c 😀")

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(data))
	assert.Equal(t, "user", doc.FindElement("/xml/ToUserName").Text())
	assert.Equal(t, "corp", doc.FindElement("/xml/FromUserName").Text())
	assert.Equal(t, "1700000000", doc.FindElement("/xml/CreateTime").Text())
	assert.Equal(t, "text", doc.FindElement("/xml/MsgType").Text())
	assert.Equal(t, "a < b & c 😀", doc.FindElement("/xml/Content").Text())
}

func TestEncodeReply_Media(t *testing.T) {
	tests := []struct {
		reply   Reply
		msgType string
		path    string
	}{
		{&ImageReply{MediaID: "img"}, "image", "/xml/Image/MediaId"},
		{&VoiceReply{MediaID: "vc"}, "voice", "/xml/Voice/MediaId"},
		{&VideoReply{MediaID: "vd", Title: "t", Description: "d"}, "video", "/xml/Video/MediaId"},
	}
	for _, tt := range tests {
		t.Run(tt.msgType, func(t *testing.T) {
			data, err := EncodeReply(tt.reply, "user", "corp", 1)
			require.NoError(t, err)

			doc := etree.NewDocument()
			require.NoError(t, doc.ReadFromBytes(data))
			assert.Equal(t, tt.msgType, doc.FindElement("/xml/MsgType").Text())
			el := doc.FindElement(tt.path)
			require.NotNil(t, el)
			assert.NotEmpty(t, el.Text())
		})
	}
}

func TestEncodeReply_News(t *testing.T) {
	reply := &NewsReply{Articles: []Article{
		{Title: "one", Description: "first", PicURL: "https://example.com/1.png", URL: "https://example.com/1"},
		{Title: "two", Description: "second", PicURL: "https://example.com/2.png", URL: "https://example.com/2?a=1&b=2"},
	}}
	data, err := EncodeReply(reply, "user", "corp", 1)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(data))
	assert.Equal(t, "news", doc.FindElement("/xml/MsgType").Text())
	assert.Equal(t, "2", doc.FindElement("/xml/ArticleCount").Text())

	items := doc.FindElements("/xml/Articles/item")
	require.Len(t, items, 2)
	assert.Equal(t, "two", items[1].FindElement("Title").Text())
	assert.Equal(t, "https://example.com/2?a=1&b=2", items[1].FindElement("Url").Text())
}

func TestEncodeReply_Invalid(t *testing.T) {
	tooMany := make([]Article, maxNewsArticles+1)
	for i := range tooMany {
		tooMany[i] = Article{Title: strings.Repeat("x", i+1)}
	}

	tests := map[string]Reply{
		"nil":           nil,
		"empty text":    &TextReply{},
		"empty image":   &ImageReply{},
		"empty voice":   &VoiceReply{},
		"empty video":   &VideoReply{Title: "t"},
		"no articles":   &NewsReply{},
		"many articles": &NewsReply{Articles: tooMany},
	}
	for name, reply := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := EncodeReply(reply, "user", "corp", 1)
			assert.ErrorIs(t, err, ErrInvalidReply)
		})
	}
}
