package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xndrbrgs/pampampay-reconciler/internal/config"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
)

func signPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func testVerifier() *Verifier {
	return NewVerifier(map[model.Provider]config.ProviderConfig{
		model.ProviderCoinbase: {
			WebhookSecret:   "cb_secret",
			SignatureHeader: "X-CC-Webhook-Signature",
		},
		model.ProviderBTCPay: {
			WebhookSecret:   "btc_secret",
			SignatureHeader: "BTCPay-Sig",
			SignaturePrefix: "sha256=",
		},
		model.ProviderSquare: {
			SignatureHeader: "X-Square-HmacSha256-Signature",
			// no secret: disabled
		},
	})
}

func TestVerify(t *testing.T) {
	t.Parallel()

	v := testVerifier()
	body := []byte(`{"type":"charge:confirmed","data":{"id":"abc123"}}`)

	header := http.Header{}
	header.Set("X-CC-Webhook-Signature", signPayload(body, "cb_secret"))
	assert.True(t, v.Verify(model.ProviderCoinbase, body, header))
}

func TestVerifyTamperedBody(t *testing.T) {
	t.Parallel()

	v := testVerifier()
	body := []byte(`{"type":"charge:confirmed","data":{"id":"abc123"}}`)
	tampered := []byte(`{"type":"charge:confirmed","data":{"id":"evil999"}}`)

	header := http.Header{}
	header.Set("X-CC-Webhook-Signature", signPayload(body, "cb_secret"))
	assert.False(t, v.Verify(model.ProviderCoinbase, tampered, header))
}

func TestVerifyPrefixedSignature(t *testing.T) {
	t.Parallel()

	v := testVerifier()
	body := []byte(`{"type":"InvoiceSettled","invoiceId":"inv_1"}`)

	header := http.Header{}
	header.Set("BTCPay-Sig", "sha256="+signPayload(body, "btc_secret"))
	assert.True(t, v.Verify(model.ProviderBTCPay, body, header))

	// The prefix is mandatory when configured.
	header.Set("BTCPay-Sig", signPayload(body, "btc_secret"))
	assert.False(t, v.Verify(model.ProviderBTCPay, body, header))
}

func TestVerifyMissingHeader(t *testing.T) {
	t.Parallel()

	v := testVerifier()
	assert.False(t, v.Verify(model.ProviderCoinbase, []byte(`{}`), http.Header{}))
}

func TestVerifyWrongSecret(t *testing.T) {
	t.Parallel()

	v := testVerifier()
	body := []byte(`{}`)
	header := http.Header{}
	header.Set("X-CC-Webhook-Signature", signPayload(body, "other_secret"))
	assert.False(t, v.Verify(model.ProviderCoinbase, body, header))
}

func TestVerifyNonHexSignature(t *testing.T) {
	t.Parallel()

	v := testVerifier()
	header := http.Header{}
	header.Set("X-CC-Webhook-Signature", "not-hex!!")
	assert.False(t, v.Verify(model.ProviderCoinbase, []byte(`{}`), header))
}

func TestVerifyDisabledOrUnknownProvider(t *testing.T) {
	t.Parallel()

	v := testVerifier()
	body := []byte(`{}`)
	header := http.Header{}
	header.Set("X-Square-HmacSha256-Signature", signPayload(body, ""))
	assert.False(t, v.Verify(model.ProviderSquare, body, header))
	assert.False(t, v.Verify(model.ProviderStripe, body, header))
}
