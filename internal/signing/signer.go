package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Signer produces and verifies HMAC signatures over canonical JSON.
//
// Canonical form is RFC 8785: keys sorted lexicographically, independent of
// field insertion order. Signatures are HMAC-SHA256, base64url with padding
// stripped.
type Signer struct {
	secret []byte
	keyID  string
}

var ErrNoSecret = errors.New("signing: secret is required")

func NewSigner(secret, keyID string) (*Signer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if keyID == "" {
		keyID = "primary"
	}
	return &Signer{secret: []byte(secret), keyID: keyID}, nil
}

func (s *Signer) KeyID() string { return s.keyID }

// Canonicalize serializes v to its RFC 8785 canonical JSON byte form.
func (s *Signer) Canonicalize(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("signing: marshal failed: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("signing: canonicalize failed: %w", err)
	}
	return canonical, nil
}

// Sign returns the signature over the canonical form of v.
func (s *Signer) Sign(v any) (string, error) {
	canonical, err := s.Canonicalize(v)
	if err != nil {
		return "", err
	}
	return s.signBytes(canonical), nil
}

// Verify recomputes the signature over v and compares it to sig in constant
// time. An absent signature never verifies.
func (s *Signer) Verify(v any, sig string) bool {
	if sig == "" {
		return false
	}
	expected, err := s.Sign(v)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(sig))
}

// Token builds a compact three-part token (header.payload.signature) for
// export to external verifiers. The header carries the algorithm and key id;
// the payload is the canonical form of v; sig is used as-is when provided and
// recomputed otherwise.
func (s *Signer) Token(v any, sig string) (string, error) {
	canonical, err := s.Canonicalize(v)
	if err != nil {
		return "", err
	}
	if sig == "" {
		sig = s.signBytes(canonical)
	}

	header, err := json.Marshal(map[string]string{"alg": "HS256", "kid": s.keyID})
	if err != nil {
		return "", fmt.Errorf("signing: header marshal failed: %w", err)
	}

	enc := base64.RawURLEncoding
	return enc.EncodeToString(header) + "." + enc.EncodeToString(canonical) + "." + sig, nil
}

func (s *Signer) signBytes(canonical []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonical)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
