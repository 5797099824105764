package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
)

const testSecret = "whsec_test"

func TestNewClientValidatesKeys(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, config.StripeConfig{WebhookSecret: testSecret}, nil)
	assert.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_1"}, nil)
	assert.ErrorIs(t, err, errSecretRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_live_1", WebhookSecret: testSecret, Env: "test"}, nil)
	assert.Error(t, err)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_1", WebhookSecret: testSecret, Env: "staging"}, nil)
	assert.ErrorIs(t, err, errInvalidStripeEnv)

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_live_1", WebhookSecret: testSecret, Env: "LIVE"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "live", client.Environment())
}

func TestVerifyEvent(t *testing.T) {
	client := NewVerifier(testSecret)
	payload := []byte(`{"id":"evt_1","object":"event","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)

	event, err := client.VerifyEvent(payload, signatureHeader(payload, testSecret, time.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)
	assert.EqualValues(t, "checkout.session.completed", event.Type)

	_, err = client.VerifyEvent(payload, "")
	assert.True(t, errors.Is(err, ErrSignature))

	_, err = client.VerifyEvent(payload, signatureHeader(payload, "whsec_other", time.Now().Unix()))
	assert.True(t, errors.Is(err, ErrSignature))

	stale := time.Now().Add(-time.Hour).Unix()
	_, err = client.VerifyEvent(payload, signatureHeader(payload, testSecret, stale))
	assert.True(t, errors.Is(err, ErrSignature))
}

func TestRefundRequiresAPIClient(t *testing.T) {
	_, err := NewVerifier(testSecret).Refund(context.Background(), "pi_1", 100, "")
	assert.Error(t, err)
}

func signatureHeader(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
