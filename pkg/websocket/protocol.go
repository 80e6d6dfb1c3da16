package websocket

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

const (
	OpPing        = "ping"
	OpLogin       = "login"
	OpSubscribe   = "subscribe"
	OpUnsubscribe = "unsubscribe"
)

var pingRequest = []byte(`{"op":"ping"}`)

// Request is a control message sent to the endpoint.
type Request struct {
	Op      string     `json:"op"`
	Args    *LoginArgs `json:"args,omitempty"`
	Channel string     `json:"channel,omitempty"`
	Market  string     `json:"market,omitempty"`
}

// LoginArgs authenticates the session.
type LoginArgs struct {
	Key        string `json:"key"`
	Sign       string `json:"sign"`
	Time       int64  `json:"time"`
	Subaccount string `json:"subaccount,omitempty"`
}

// PingRequest returns the heartbeat payload.
func PingRequest() []byte {
	return append([]byte(nil), pingRequest...)
}

// LoginRequest signs "<unix ms>websocket_login" with secret using
// HMAC-SHA256.
func LoginRequest(key, secret, subaccount string, now time.Time) ([]byte, error) {
	ms := now.UnixMilli()
	return sonic.Marshal(Request{
		Op: OpLogin,
		Args: &LoginArgs{
			Key:        key,
			Sign:       Sign(secret, ms),
			Time:       ms,
			Subaccount: subaccount,
		},
	})
}

// Sign returns the hex HMAC-SHA256 of "<ms>websocket_login".
func Sign(secret string, ms int64) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(strconv.FormatInt(ms, 10) + "websocket_login"))
	return hex.EncodeToString(h.Sum(nil))
}

func SubscribeRequest(channel, market string) ([]byte, error) {
	return sonic.Marshal(Request{Op: OpSubscribe, Channel: channel, Market: market})
}

func UnsubscribeRequest(channel, market string) ([]byte, error) {
	return sonic.Marshal(Request{Op: OpUnsubscribe, Channel: channel, Market: market})
}

// ParseOp returns the op field of a JSON payload. ok is false when the
// payload is not a JSON object or carries no op.
func ParseOp(payload []byte) (op string, ok bool) {
	var head struct {
		Op string `json:"op"`
	}
	if err := sonic.Unmarshal(payload, &head); err != nil || head.Op == "" {
		return "", false
	}
	return head.Op, true
}
