package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

func SignResource(secret string, parts ...string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	payload := strings.Join(parts, ":")
	mac.Write([]byte(payload))
	sum := mac.Sum(nil)
	return []byte(base64.RawURLEncoding.EncodeToString(sum))
}

// SealValue appends a signature so a cookie value can't be forged.
func SealValue(secret string, value string) string {
	return value + "." + string(SignResource(secret, value))
}

// OpenValue returns the original value of a sealed string.
func OpenValue(secret string, sealed string) (string, bool) {
	idx := strings.LastIndexByte(sealed, '.')
	if idx <= 0 || idx == len(sealed)-1 {
		return "", false
	}
	value, sig := sealed[:idx], sealed[idx+1:]
	if !hmac.Equal([]byte(sig), SignResource(secret, value)) {
		return "", false
	}
	return value, true
}
