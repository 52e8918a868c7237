package wework

import (
	"crypto/sha1"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// Sign 计算企业微信消息签名
// SHA1(sort(token, timestamp, nonce, msgEncrypt))，结果为小写十六进制
func Sign(token, timestamp, nonce, msgEncrypt string) string {
	params := []string{token, timestamp, nonce, msgEncrypt}
	sort.Strings(params)
	hash := sha1.Sum([]byte(strings.Join(params, "")))
	return hex.EncodeToString(hash[:])
}

// verifySignature 常量时间比较签名，期望值不外泄
func verifySignature(token, signature, timestamp, nonce, msgEncrypt string) bool {
	if signature == "" {
		return false
	}
	computed := Sign(token, timestamp, nonce, msgEncrypt)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(signature))) == 1
}
