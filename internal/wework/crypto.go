package wework

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// EncodingAESKeyLen 企业微信后台生成的 EncodingAESKey 长度
	EncodingAESKeyLen = 43

	aesKeyLen       = 32
	randomPrefixLen = 16
	frameHeaderLen  = randomPrefixLen + 4

	// padBlockSize 企业微信协议指定的 PKCS#7 填充块大小，不是 AES 块大小
	padBlockSize = 32
)

// Credentials 回调加解密所需的进程级凭据，启动时构造一次，之后只读
type Credentials struct {
	Token      string
	AESKey     []byte
	ReceiverID string // 企业应用为 CorpID，第三方应用为 SuiteID
}

// NewCredentials 校验并解码回调配置
// encodingAESKey 为 43 字符的 Base64 编码密钥，追加 "=" 后解码得到 32 字节 AES 密钥
func NewCredentials(token, encodingAESKey, receiverID string) (Credentials, error) {
	if token == "" {
		return Credentials{}, fmt.Errorf("%w: token must not be empty", ErrConfiguration)
	}
	if len(encodingAESKey) != EncodingAESKeyLen {
		return Credentials{}, fmt.Errorf("%w: encoding_aes_key must be %d characters, got %d",
			ErrConfiguration, EncodingAESKeyLen, len(encodingAESKey))
	}
	aesKey, err := base64.StdEncoding.DecodeString(encodingAESKey + "=")
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: decode encoding_aes_key: %w", ErrConfiguration, err)
	}
	if len(aesKey) != aesKeyLen {
		return Credentials{}, fmt.Errorf("%w: invalid aes key length: got %d, want %d", ErrConfiguration, len(aesKey), aesKeyLen)
	}
	return Credentials{
		Token:      token,
		AESKey:     aesKey,
		ReceiverID: receiverID,
	}, nil
}

// Crypto 企业微信消息加解密接口
type Crypto interface {
	// VerifySignature 验证消息签名
	// 签名算法: SHA1(sort(token, timestamp, nonce, msgEncrypt))
	VerifySignature(signature, timestamp, nonce, msgEncrypt string) bool

	// Sign 为被动回复的密文计算签名
	Sign(timestamp, nonce, msgEncrypt string) string

	// Decrypt 解密消息
	// AES-CBC 解密，密钥由 EncodingAESKey base64 解码得到
	Decrypt(encrypted string) ([]byte, error)

	// Encrypt 加密消息（用于被动回复）
	Encrypt(plaintext []byte) (string, error)

	// ReceiverID 明文帧尾部期望的 ReceiveId
	ReceiverID() string
}

// cryptoImpl Crypto 接口的实现
type cryptoImpl struct {
	creds  Credentials
	random io.Reader
}

// NewCrypto 基于已校验的凭据创建加解密服务实例
func NewCrypto(creds Credentials) (Crypto, error) {
	if len(creds.AESKey) != aesKeyLen {
		return nil, fmt.Errorf("%w: invalid aes key length: got %d, want %d", ErrConfiguration, len(creds.AESKey), aesKeyLen)
	}
	return &cryptoImpl{
		creds:  creds,
		random: rand.Reader,
	}, nil
}

func (c *cryptoImpl) VerifySignature(signature, timestamp, nonce, msgEncrypt string) bool {
	return verifySignature(c.creds.Token, signature, timestamp, nonce, msgEncrypt)
}

func (c *cryptoImpl) Sign(timestamp, nonce, msgEncrypt string) string {
	return Sign(c.creds.Token, timestamp, nonce, msgEncrypt)
}

func (c *cryptoImpl) Decrypt(encrypted string) ([]byte, error) {
	return DecryptFrame(c.creds.AESKey, []byte(c.creds.ReceiverID), encrypted)
}

func (c *cryptoImpl) Encrypt(plaintext []byte) (string, error) {
	return EncryptFrame(c.creds.AESKey, []byte(c.creds.ReceiverID), plaintext, c.random)
}

func (c *cryptoImpl) ReceiverID() string {
	return c.creds.ReceiverID
}

// DecryptFrame 解密企业微信加密消息
// Base64 解码 → AES-CBC 解密（IV = key[:16]）→ PKCS#7 去填充 → 解析明文帧 → 验证 ReceiveId
func DecryptFrame(key, receiverID []byte, encrypted string) ([]byte, error) {
	if len(key) != aesKeyLen {
		return nil, fmt.Errorf("%w: invalid aes key length %d", ErrConfiguration, len(key))
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode: %w", ErrMalformedEnvelope, err)
	}
	if len(ciphertext) == 0 || len(ciphertext)%padBlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a multiple of %d",
			ErrMalformedEnvelope, len(ciphertext), padBlockSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new aes cipher: %w", err)
	}
	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, key[:aes.BlockSize]).CryptBlocks(plaintext, ciphertext)

	plaintext, err = pkcs7Unpad(plaintext, padBlockSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}

	// random(16) + msgLen(4, big-endian) + msg + receiveId
	if len(plaintext) < frameHeaderLen {
		return nil, fmt.Errorf("%w: plaintext too short: %d bytes", ErrFrameCorrupt, len(plaintext))
	}
	msgLen := uint64(binary.BigEndian.Uint32(plaintext[randomPrefixLen:frameHeaderLen]))
	remaining := uint64(len(plaintext) - frameHeaderLen)
	if remaining < msgLen+uint64(len(receiverID)) {
		return nil, fmt.Errorf("%w: msg length %d exceeds frame of %d bytes", ErrFrameCorrupt, msgLen, remaining)
	}

	end := frameHeaderLen + int(msgLen)
	if got := plaintext[end:]; !bytes.Equal(got, receiverID) {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrReceiverMismatch, got, receiverID)
	}

	return plaintext[frameHeaderLen:end], nil
}

// EncryptFrame 加密消息
// 构造 random(16) + msgLen(4, big-endian) + msg + receiveId → PKCS#7 填充 → AES-CBC 加密 → Base64 编码
// random 为 nil 时使用 crypto/rand
func EncryptFrame(key, receiverID, plaintext []byte, random io.Reader) (string, error) {
	if len(key) != aesKeyLen {
		return "", fmt.Errorf("%w: invalid aes key length %d", ErrConfiguration, len(key))
	}
	if random == nil {
		random = rand.Reader
	}

	buf := make([]byte, frameHeaderLen, frameHeaderLen+len(plaintext)+len(receiverID)+padBlockSize)
	if _, err := io.ReadFull(random, buf[:randomPrefixLen]); err != nil {
		return "", fmt.Errorf("generate random bytes: %w", err)
	}
	binary.BigEndian.PutUint32(buf[randomPrefixLen:frameHeaderLen], uint32(len(plaintext)))
	buf = append(buf, plaintext...)
	buf = append(buf, receiverID...)

	padded := pkcs7Pad(buf, padBlockSize)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("new aes cipher: %w", err)
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, key[:aes.BlockSize]).CryptBlocks(ciphertext, padded)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// pkcs7Pad 对数据进行 PKCS#7 填充
func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

// pkcs7Unpad 去除 PKCS#7 填充
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("invalid padded length %d", len(data))
	}
	padding := int(data[len(data)-1])
	if padding == 0 || padding > blockSize {
		return nil, fmt.Errorf("invalid padding value: %d", padding)
	}
	for i := len(data) - padding; i < len(data); i++ {
		if data[i] != byte(padding) {
			return nil, fmt.Errorf("invalid padding byte at position %d", i)
		}
	}
	return data[:len(data)-padding], nil
}
