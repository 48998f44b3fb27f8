package monitoring

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"alertId":"a-1"}`)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ts := now.Unix()
	sig := SignPayload("hook-secret", body, ts)

	assert.NoError(t, VerifySignature("hook-secret", body, ts, sig, now))
	assert.NoError(t, VerifySignature("hook-secret", body, ts, sig, now.Add(MaxSignatureSkew)))

	assert.Error(t, VerifySignature("other", body, ts, sig, now))
	assert.Error(t, VerifySignature("hook-secret", []byte(`{}`), ts, sig, now))
	assert.Error(t, VerifySignature("hook-secret", body, ts, sig, now.Add(MaxSignatureSkew+time.Second)))
	assert.Error(t, VerifySignature("hook-secret", body, ts, sig, now.Add(-MaxSignatureSkew-time.Second)))
	assert.Error(t, VerifySignature("", body, ts, sig, now))
}

func TestWebhookNotifier_SignsPayload(t *testing.T) {
	verified := make(chan error, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ts, err := strconv.ParseInt(r.Header.Get(HeaderWebhookTimestamp), 10, 64)
		if err != nil {
			verified <- err
		} else {
			verified <- VerifySignature("hook-secret", body, ts, r.Header.Get(HeaderWebhookSignature), time.Now())
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	config := DefaultWebhookConfig()
	config.URL = server.URL
	config.SigningSecret = "hook-secret"

	require.NoError(t, NewWebhookNotifier(testLogger(), config).Send(context.Background(), sampleNotification()))
	assert.NoError(t, <-verified)
}

func TestWebhookNotifier_UnsignedWithoutSecret(t *testing.T) {
	var header string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header = r.Header.Get(HeaderWebhookSignature)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	config := DefaultWebhookConfig()
	config.URL = server.URL

	require.NoError(t, NewWebhookNotifier(testLogger(), config).Send(context.Background(), sampleNotification()))
	assert.Empty(t, header)
}
