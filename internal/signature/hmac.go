package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw body
const SignatureHeader = "X-Signature"

// Verifier checks webhook bodies against per-provider shared secrets.
// Providers without a secret are not verified.
type Verifier struct {
	secrets map[string]string
}

// NewVerifier creates a verifier from provider → secret
func NewVerifier(secrets map[string]string) *Verifier {
	clean := make(map[string]string, len(secrets))
	for k, v := range secrets {
		if v = strings.TrimSpace(v); v != "" {
			clean[strings.ToLower(k)] = v
		}
	}
	return &Verifier{secrets: clean}
}

// Required reports whether a secret is configured for provider
func (v *Verifier) Required(provider string) bool {
	if v == nil {
		return false
	}
	_, ok := v.secrets[strings.ToLower(provider)]
	return ok
}

// Verify checks header, with or without a sha256= prefix, against body
func (v *Verifier) Verify(provider, header string, body []byte) error {
	if !v.Required(provider) {
		return nil
	}
	sig := strings.TrimSpace(header)
	sig = strings.TrimPrefix(sig, "sha256=")
	if sig == "" {
		return errors.Wrap(ErrInvalidSignature, "signature header is missing")
	}
	provided, err := hex.DecodeString(sig)
	if err != nil {
		return errors.Wrap(ErrInvalidSignature, "signature is not hex")
	}
	if !hmac.Equal(Sign(v.secrets[strings.ToLower(provider)], body), provided) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the HMAC-SHA256 of body
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}
