package orangemoney

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// requestSignature signs METHOD|PATH|TIMESTAMP|BODY with the merchant secret.
func requestSignature(secret, method, path, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join([]string{method, path, timestamp, string(body)}, "|")))

	return hex.EncodeToString(mac.Sum(nil))
}

func webhookSignature(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	return hex.EncodeToString(mac.Sum(nil))
}

func verifySignature(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}

	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}

	want, _ := hex.DecodeString(webhookSignature(secret, payload))

	return hmac.Equal(got, want)
}
