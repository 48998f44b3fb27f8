package monitoring

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Webhook signature headers
const (
	HeaderWebhookTimestamp = "X-Clearpoint-Timestamp"
	HeaderWebhookSignature = "X-Clearpoint-Signature"
)

// MaxSignatureSkew is how far a signed timestamp may drift from the receiver clock
const MaxSignatureSkew = 5 * time.Minute

// SignPayload computes HMAC-SHA256(body + timestamp) as hex
func SignPayload(secret string, body []byte, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature for receivers of our payloads
func VerifySignature(secret string, body []byte, timestamp int64, signature string, now time.Time) error {
	if secret == "" {
		return fmt.Errorf("signing secret not set")
	}

	skew := now.Sub(time.Unix(timestamp, 0))
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxSignatureSkew {
		return fmt.Errorf("timestamp outside acceptable range")
	}

	expected := SignPayload(secret, body, timestamp)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("signature validation failed")
	}
	return nil
}
