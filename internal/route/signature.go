package route

import (
	"crypto/sha1" //nolint:gosec // truncated SHA-1 is the URL signature format
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"thumbnail-proxy-go/internal/model"
)

// ErrSignatureInvalid is returned when a thumbnail URL carries a missing or wrong signature.
var ErrSignatureInvalid = errors.New("invalid thumbnail signature")

// Signer computes and checks thumbnail URL signatures.
//
// The check is a plain string comparison. Signatures keep third parties from
// requesting arbitrary renders; they are not an authentication boundary, and a
// constant-time comparison would only add timing resistance.
type Signer struct {
	secret    string
	keyLength int
}

// NewSigner returns a Signer. An empty secret or zero key length disables signing.
func NewSigner(secret string, keyLength int) *Signer {
	return &Signer{secret: secret, keyLength: keyLength}
}

// Enabled reports whether thumbnail URLs must be signed.
func (s *Signer) Enabled() bool {
	return s != nil && s.secret != "" && s.keyLength > 0
}

// Canonical returns the string the signature is computed over: the URL fields
// with their separators, without the signature itself.
func Canonical(m model.MatchResult) string {
	var b strings.Builder
	b.WriteString(m.Name)
	b.WriteString("_")
	b.WriteString(m.Dimensions)
	if m.Gravity != "" {
		b.WriteString("-")
		b.WriteString(m.Gravity)
	}
	if m.Options != "" {
		b.WriteString("-")
		b.WriteString(m.Options)
	}
	b.WriteString(m.Ext)
	return b.String()
}

// Expected returns the signature a request with these fields must carry.
func (s *Signer) Expected(m model.MatchResult) string {
	sum := sha1.Sum([]byte(Canonical(m) + s.secret)) //nolint:gosec
	return hex.EncodeToString(sum[:])[:s.keyLength]
}

// Verify checks the signature carried by m.
func (s *Signer) Verify(m model.MatchResult) error {
	if m.Signature == "" {
		return fmt.Errorf("%w: missing", ErrSignatureInvalid)
	}
	if m.Signature != s.Expected(m) {
		return fmt.Errorf("%w: mismatch", ErrSignatureInvalid)
	}
	return nil
}

// SignPath inserts the signature into an unsigned thumbnail path.
func (s *Signer) SignPath(matcher *Matcher, path string) (string, error) {
	if !s.Enabled() {
		return "", fmt.Errorf("signing is disabled: set thumbnail.secret and thumbnail.keylength")
	}
	m, ok := matcher.Match(path)
	if !ok {
		return "", fmt.Errorf("%q is not a thumbnail path", path)
	}
	if m.Signature != "" {
		return "", fmt.Errorf("%q is already signed", path)
	}
	stem := strings.TrimSuffix(path, m.Ext)
	return stem + "-" + s.Expected(m) + m.Ext, nil
}
