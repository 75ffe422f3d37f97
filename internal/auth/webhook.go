package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/spec-kit/lead-router/pkg/util"
)

// WebhookTokenHeader carries the shared secret of a marketing site.
const WebhookTokenHeader = "X-Webhook-Token"

// TokenVerifier checks shared secrets against bcrypt hashes keyed by caller name.
type TokenVerifier struct {
	hashes map[string][]byte
}

// NewTokenVerifier builds a verifier. Keys are matched case-insensitively.
func NewTokenVerifier(hashes map[string]string) *TokenVerifier {
	v := &TokenVerifier{hashes: make(map[string][]byte, len(hashes))}
	for key, hash := range hashes {
		v.hashes[strings.ToLower(key)] = []byte(hash)
	}
	return v
}

// HashToken returns the bcrypt hash to configure for token.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether token matches the hash configured for key.
func (v *TokenVerifier) Verify(key, token string) bool {
	if v == nil || token == "" {
		return false
	}
	hash, ok := v.hashes[strings.ToLower(key)]
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(token)) == nil
}

// RequireToken rejects requests whose X-Webhook-Token does not match the hash
// registered under keyFn(c).
func (v *TokenVerifier) RequireToken(keyFn func(c *fiber.Ctx) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !v.Verify(keyFn(c), c.Get(WebhookTokenHeader)) {
			return apperrors.NewUnauthorized("invalid webhook token")
		}
		return c.Next()
	}
}
