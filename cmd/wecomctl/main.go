// wecomctl 企业微信调试工具：上传素材、发送应用消息、模拟回调
package main

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go-wecom-gateway/internal/adapter/client"
	"go-wecom-gateway/internal/shared"
	"go-wecom-gateway/internal/wework"
)

const usage = `usage: wecomctl <command> [flags]

commands:
  upload    upload a temporary media file (or an image with -image) and print its id/url
  send      send an application text message through message/send
  simulate  post an encrypted, signed text callback to a running gateway and print the reply
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "upload":
		err = runUpload(ctx, os.Args[2:], logger)
	case "send":
		err = runSend(ctx, os.Args[2:], logger)
	case "simulate":
		err = runSimulate(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newAPIClient(configPath string, logger *slog.Logger) (*client.WeWorkClient, error) {
	cfg, err := shared.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return client.NewWeWorkClient(cfg.WeWork, client.NewMemoryTokenStore(), nil, logger), nil
}

func runUpload(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	configPath := fs.String("config", "configs/config.yaml", "path to config file")
	mediaType := fs.String("type", "file", "media type: image|voice|video|file")
	image := fs.Bool("image", false, "upload as a permanent image via media/uploadimg")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("upload requires exactly one file path")
	}
	path := fs.Arg(0)

	c, err := newAPIClient(*configPath, logger)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open media file: %w", err)
	}
	defer f.Close()

	if *image {
		u, err := c.UploadImage(ctx, filepath.Base(path), f)
		if err != nil {
			return err
		}
		fmt.Println(u)
		return nil
	}

	t, err := client.ParseMediaType(*mediaType)
	if err != nil {
		return err
	}
	up, err := c.UploadMedia(ctx, t, filepath.Base(path), f)
	if err != nil {
		return err
	}
	fmt.Println(up.MediaID)
	return nil
}

func runSend(ctx context.Context, args []string, logger *slog.Logger) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	configPath := fs.String("config", "configs/config.yaml", "path to config file")
	toUser := fs.String("to", "", "receiver user id, @all for everyone")
	text := fs.String("text", "", "message content")
	markdown := fs.Bool("markdown", false, "send content as markdown")
	fs.Parse(args)

	c, err := newAPIClient(*configPath, logger)
	if err != nil {
		return err
	}

	msg := client.NewTextMessage(*text)
	if *markdown {
		msg = client.NewMarkdownMessage(*text)
	}
	res, err := c.SendMessage(ctx, msg.ToUser(*toUser))
	if err != nil {
		return err
	}
	fmt.Println(res.MsgID)
	return nil
}

func runSimulate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	configPath := fs.String("config", "configs/config.yaml", "path to config file")
	target := fs.String("url", "http://127.0.0.1:8080/callback", "gateway callback URL")
	from := fs.String("from", "wecomctl", "FromUserName of the simulated message")
	text := fs.String("text", "hello", "text content")
	fs.Parse(args)

	cfg, err := shared.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	creds, err := wework.NewCredentials(cfg.WeWork.Token, cfg.WeWork.EncodingAESKey, cfg.WeWork.CorpID)
	if err != nil {
		return err
	}
	crypto, err := wework.NewCrypto(creds)
	if err != nil {
		return err
	}

	now := time.Now()
	plain, err := wework.EncodeMessage(&wework.Message{
		ToUserName:   crypto.ReceiverID(),
		FromUserName: *from,
		CreateTime:   now.Unix(),
		MsgType:      wework.MsgTypeText,
		MsgID:        strconv.FormatInt(now.UnixNano(), 10),
		AgentID:      cfg.WeWork.AgentID,
		Body:         &wework.Text{Content: *text},
	})
	if err != nil {
		return err
	}
	encrypted, err := crypto.Encrypt(plain)
	if err != nil {
		return err
	}

	body, err := xml.Marshal(wework.EncryptedBody{
		ToUserName: crypto.ReceiverID(),
		AgentID:    strconv.FormatInt(cfg.WeWork.AgentID, 10),
		Encrypt:    encrypted,
	})
	if err != nil {
		return fmt.Errorf("marshal callback body: %w", err)
	}

	timestamp := strconv.FormatInt(now.Unix(), 10)
	nonce := strconv.FormatInt(now.UnixNano()%1e9, 10)
	q := url.Values{}
	q.Set("msg_signature", crypto.Sign(timestamp, nonce, encrypted))
	q.Set("timestamp", timestamp)
	q.Set("nonce", nonce)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *target+"?"+q.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("post callback: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if bytes.Equal(data, wework.EmptyAck) {
		fmt.Println("(no passive reply)")
		return nil
	}

	var env wework.ReplyEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal reply envelope: %w", err)
	}
	if !crypto.VerifySignature(env.MsgSignature, env.TimeStamp, env.Nonce, env.Encrypt) {
		return fmt.Errorf("reply signature: %w", wework.ErrAuthentication)
	}
	reply, err := crypto.Decrypt(env.Encrypt)
	if err != nil {
		return fmt.Errorf("decrypt reply: %w", err)
	}
	fmt.Println(string(reply))
	return nil
}
