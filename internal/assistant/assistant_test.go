package assistant_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"go-wecom-gateway/internal/ai"
	aimocks "go-wecom-gateway/internal/ai/mocks"
	"go-wecom-gateway/internal/assistant"
	"go-wecom-gateway/internal/assistant/mocks"
	"go-wecom-gateway/internal/wework"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func textMessage(content string) *wework.Message {
	return &wework.Message{
		ToUserName:   "corp",
		FromUserName: "zhangsan",
		CreateTime:   1700000000,
		MsgType:      wework.MsgTypeText,
		MsgID:        "42",
		AgentID:      1000002,
		Body:         &wework.Text{Content: content},
	}
}

func TestHandle_TextAsksAI(t *testing.T) {
	ctrl := gomock.NewController(t)
	aiSvc := aimocks.NewMockService(ctrl)
	a := assistant.New(aiSvc, discardLogger())

	aiSvc.EXPECT().SendMessage(gomock.Any(), ai.ChatRequest{
		UserID:  "zhangsan",
		Content: "今天天气如何",
		Source:  ai.SourceWeWork,
		MsgID:   "42",
		AgentID: 1000002,
	}).Return(&ai.ChatResponse{Reply: "晴"}, nil)

	reply, err := a.Handle(context.Background(), textMessage("今天天气如何"))
	require.NoError(t, err)
	assert.Equal(t, &wework.TextReply{Content: "晴"}, reply)
}

func TestHandle_EmptyAIReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	aiSvc := aimocks.NewMockService(ctrl)
	a := assistant.New(aiSvc, discardLogger())

	aiSvc.EXPECT().SendMessage(gomock.Any(), gomock.Any()).Return(&ai.ChatResponse{}, nil)

	reply, err := a.Handle(context.Background(), textMessage("hi"))
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestHandle_AIError(t *testing.T) {
	ctrl := gomock.NewController(t)
	aiSvc := aimocks.NewMockService(ctrl)
	a := assistant.New(aiSvc, discardLogger())

	backendErr := errors.New("connection refused")
	aiSvc.EXPECT().SendMessage(gomock.Any(), gomock.Any()).Return(nil, backendErr)

	reply, err := a.Handle(context.Background(), textMessage("hi"))
	assert.ErrorIs(t, err, backendErr)
	assert.Nil(t, reply)
}

func TestHandle_EchoWithoutAI(t *testing.T) {
	a := assistant.New(nil, discardLogger())

	reply, err := a.Handle(context.Background(), textMessage("ping 🏓"))
	require.NoError(t, err)
	assert.Equal(t, &wework.TextReply{Content: "ping 🏓"}, reply)
}

func TestHandle_ImageEcho(t *testing.T) {
	a := assistant.New(nil, discardLogger())

	msg := &wework.Message{MsgType: wework.MsgTypeImage, Body: &wework.Image{PicURL: "http://x", MediaID: "media-1"}}
	reply, err := a.Handle(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, &wework.ImageReply{MediaID: "media-1"}, reply)
}

func TestHandle_Events(t *testing.T) {
	a := assistant.New(nil, discardLogger(), assistant.WithWelcomeText("欢迎使用"))

	reply, err := a.Handle(context.Background(), &wework.Message{
		MsgType: wework.MsgTypeEvent,
		Body:    &wework.Event{Event: wework.EventEnterAgent},
	})
	require.NoError(t, err)
	assert.Equal(t, &wework.TextReply{Content: "欢迎使用"}, reply)

	reply, err = a.Handle(context.Background(), &wework.Message{
		MsgType: wework.MsgTypeEvent,
		Body:    &wework.Event{Event: wework.EventClick, EventKey: "menu"},
	})
	require.NoError(t, err)
	assert.Nil(t, reply)

	silent := assistant.New(nil, discardLogger())
	reply, err = silent.Handle(context.Background(), &wework.Message{
		MsgType: wework.MsgTypeEvent,
		Body:    &wework.Event{Event: wework.EventEnterAgent},
	})
	require.NoError(t, err)
	assert.Nil(t, reply)
}

func TestHandle_OtherTypesNoReply(t *testing.T) {
	a := assistant.New(nil, discardLogger())

	for _, body := range []wework.Body{
		&wework.Voice{MediaID: "v"},
		&wework.Location{Latitude: 1, Longitude: 2},
		&wework.Link{Title: "t"},
	} {
		reply, err := a.Handle(context.Background(), &wework.Message{Body: body})
		require.NoError(t, err)
		assert.Nil(t, reply)
	}
}

func TestHandle_ActiveReply(t *testing.T) {
	ctrl := gomock.NewController(t)
	aiSvc := aimocks.NewMockService(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	a := assistant.New(aiSvc, discardLogger(), assistant.WithActiveReply(notifier))

	aiSvc.EXPECT().SendMessage(gomock.Any(), gomock.Any()).Return(&ai.ChatResponse{Reply: "稍后回复"}, nil)
	notifier.EXPECT().SendText(gomock.Any(), "zhangsan", "稍后回复").Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	reply, err := a.Handle(ctx, textMessage("hi"))
	cancel() // 请求结束不影响后台任务
	require.NoError(t, err)
	assert.Nil(t, reply)

	a.Wait()
}

func TestHandle_ActiveReplyAIError(t *testing.T) {
	ctrl := gomock.NewController(t)
	aiSvc := aimocks.NewMockService(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	a := assistant.New(aiSvc, discardLogger(), assistant.WithActiveReply(notifier))

	aiSvc.EXPECT().SendMessage(gomock.Any(), gomock.Any()).Return(nil, errors.New("timeout"))

	reply, err := a.Handle(context.Background(), textMessage("hi"))
	require.NoError(t, err)
	assert.Nil(t, reply)

	a.Wait()
}
