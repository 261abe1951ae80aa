package billing_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	stripeSecret = "whsec_test_secret"
	paddleSecret = "pdl_ntfset_test_secret"
)

func stripePayload(id, typ string, created time.Time, object string) []byte {
	return fmt.Appendf(nil,
		`{"id":%q,"object":"event","api_version":"2025-03-31.basil","type":%q,"created":%d,"data":{"object":%s}}`,
		id, typ, created.Unix(), object)
}

func stripeHeader(t *testing.T, payload []byte, secret string, ts time.Time) http.Header {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: ts,
	})
	require.NotEmpty(t, signed.Header)
	h := http.Header{}
	h.Set("Stripe-Signature", signed.Header)
	return h
}

func paddlePayload(id, typ string, occurred time.Time, data string) []byte {
	return fmt.Appendf(nil,
		`{"event_id":%q,"event_type":%q,"occurred_at":%q,"notification_id":"ntf_1","data":%s}`,
		id, typ, occurred.Format(time.RFC3339Nano), data)
}

func paddleHeader(payload []byte, secret string, ts time.Time) http.Header {
	stamp := strconv.FormatInt(ts.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(stamp + ":"))
	mac.Write(payload)
	h := http.Header{}
	h.Set("Paddle-Signature", "ts="+stamp+";h1="+hex.EncodeToString(mac.Sum(nil)))
	return h
}
