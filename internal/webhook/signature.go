package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/xndrbrgs/pampampay-reconciler/internal/config"
	"github.com/xndrbrgs/pampampay-reconciler/internal/domain/model"
)

// Verifier authenticates inbound webhook bodies. Every provider signs with
// HMAC-SHA256 over the raw body; they differ only in the header carrying the
// hex digest and an optional prefix in front of it. The comparison always goes
// through hmac.Equal so verification time does not depend on where the
// signatures diverge.
type Verifier struct {
	providers map[model.Provider]config.ProviderConfig
}

func NewVerifier(providers map[model.Provider]config.ProviderConfig) *Verifier {
	return &Verifier{providers: providers}
}

// Verify checks the signature header for provider against rawBody. rawBody
// must be the unparsed request bytes: re-serializing JSON does not preserve
// key order or whitespace and would break the digest.
func (v *Verifier) Verify(provider model.Provider, rawBody []byte, header http.Header) bool {
	pc, ok := v.providers[provider]
	if !ok || !pc.Enabled() {
		return false
	}

	sig := header.Get(pc.SignatureHeader)
	if sig == "" {
		return false
	}
	if pc.SignaturePrefix != "" {
		stripped := strings.TrimPrefix(sig, pc.SignaturePrefix)
		if stripped == sig {
			return false
		}
		sig = stripped
	}

	return verifyHMAC(rawBody, sig, pc.WebhookSecret)
}

// verifyHMAC is the single constant-time comparison primitive shared by all
// providers.
func verifyHMAC(rawBody []byte, hexSignature, secret string) bool {
	provided, err := hex.DecodeString(hexSignature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hmac.Equal(provided, mac.Sum(nil))
}
