package execution

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"

	"github.com/awnumar/memguard"
)

// ErrNoSecret is returned when signing is attempted without a secret key.
var ErrNoSecret = errors.New("no secret key configured")

// Credentials holds one exchange API key pair. The secret is encrypted at
// rest via memguard.Enclave and only opened momentarily during Sign.
type Credentials struct {
	apiKey string
	secret *memguard.Enclave
}

// NewCredentials seals the secret into locked memory.
func NewCredentials(apiKey, secret string) *Credentials {
	c := &Credentials{apiKey: apiKey}
	if secret != "" {
		c.secret = memguard.NewEnclave([]byte(secret))
	}
	return c
}

// Key returns the public API key.
func (c *Credentials) Key() string {
	return c.apiKey
}

// Sign computes the hex HMAC-SHA256 of payload with the secret key. The
// secret is held in plaintext only for the duration of the call.
func (c *Credentials) Sign(payload string) (string, error) {
	if c.secret == nil {
		return "", ErrNoSecret
	}

	buf, err := c.secret.Open()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()

	mac := hmac.New(sha256.New, buf.Bytes())
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil)), nil
}
