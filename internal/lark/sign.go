package lark

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Sign 飞书自定义机器人签名：以 timestamp + "\n" + secret 为密钥，对空消息做 HMAC-SHA256 后 base64
func Sign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(timestamp+"\n"+secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func unixTimestamp(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}
