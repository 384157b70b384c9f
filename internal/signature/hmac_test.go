package signature

import (
	"encoding/hex"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestVerifier(t *testing.T) {
	body := []byte(`{"internal_event":true}`)
	v := NewVerifier(map[string]string{"Internal": "s3cret", "clicksign": "  "})
	good := hex.EncodeToString(Sign("s3cret", body))

	assert.NoError(t, v.Verify("internal", good, body))
	assert.NoError(t, v.Verify("internal", "sha256="+good, body))
	assert.NoError(t, v.Verify("clicksign", "", body), "blank secrets disable verification")
	assert.NoError(t, v.Verify("docusign", "", body))

	for name, header := range map[string]string{
		"missing":  "",
		"not hex":  "zz",
		"mismatch": hex.EncodeToString(Sign("other", body)),
	} {
		err := v.Verify("internal", header, body)
		assert.True(t, errors.Is(err, ErrInvalidSignature), name)
	}
}

func TestNilVerifierSkips(t *testing.T) {
	var v *Verifier
	assert.NoError(t, v.Verify("internal", "", nil))
}
