package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"go.uber.org/zap/zapcore"
)

const redacted = "[redacted]"

// Credentials are the platform account used for logging in. They are never
// written to logs, errors or cache keys.
type Credentials struct {
	Username string
	Password string
	// Phone answers the "enter your phone number or username" challenge.
	Phone string
}

// Valid reports whether enough fields are set to attempt a login.
func (c Credentials) Valid() bool {
	return strings.TrimSpace(c.Username) != "" && c.Password != ""
}

// Identity is an opaque stable identifier for the account.
func (c Credentials) Identity() string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(c.Username))))
	return hex.EncodeToString(sum[:6])
}

// ChallengeAnswer returns the phone if set, else the username.
func (c Credentials) ChallengeAnswer() string {
	if c.Phone != "" {
		return c.Phone
	}
	return c.Username
}

func (c Credentials) String() string {
	return "Credentials{account=" + c.Identity() + ", password=" + redacted + "}"
}

// GoString keeps %#v from printing secrets.
func (c Credentials) GoString() string {
	return c.String()
}

// MarshalJSON never emits secrets.
func (c Credentials) MarshalJSON() ([]byte, error) {
	return []byte(`{"account":"` + c.Identity() + `"}`), nil
}

// MarshalLogObject renders the credentials for zap without secrets.
func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("account", c.Identity())
	return nil
}
