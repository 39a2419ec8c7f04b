package twitter

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// SignatureHeader carries the HMAC of a webhook POST body.
const SignatureHeader = "X-Twitter-Webhooks-Signature"

const sha256Prefix = "sha256="

// CRCResponse is the JSON body answering a challenge-response check.
type CRCResponse struct {
	ResponseToken string `json:"response_token"`
}

// ChallengeResponse answers a webhook CRC check: "sha256=" followed by the
// base64 HMAC-SHA256 of token keyed with the consumer secret.
func ChallengeResponse(consumerSecret, token string) string {
	return sha256Prefix + hmacSHA256(consumerSecret, []byte(token))
}

func NewCRCResponse(consumerSecret, token string) CRCResponse {
	return CRCResponse{ResponseToken: ChallengeResponse(consumerSecret, token)}
}

// VerifySignature checks a SignatureHeader value against body.
func VerifySignature(consumerSecret string, body []byte, header string) bool {
	got, ok := strings.CutPrefix(header, sha256Prefix)
	if !ok || got == "" {
		return false
	}
	want := hmacSHA256(consumerSecret, body)
	return hmac.Equal([]byte(got), []byte(want))
}

func hmacSHA256(key string, data []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(data)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
