package speech

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

const (
	HeaderTimestamp = "X-Azure-Ts"
	HeaderSignature = "X-Azure-Sig"

	// MaxClockSkew bounds how old or how far in the future a signed request may be.
	MaxClockSkew = 5 * time.Minute
)

var (
	ErrMissingSignature = errors.New("missing signature headers")
	ErrBadTimestamp     = errors.New("invalid signature timestamp")
	ErrStaleTimestamp   = errors.New("signature timestamp outside allowed skew")
	ErrBadSignature     = errors.New("signature mismatch")
)

// Sign returns the hex HMAC-SHA256 of ts + "\n" + body.
func Sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("\n"))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signed request. ts is RFC 3339 and must be within MaxClockSkew of now.
func Verify(secret, ts, sig string, body []byte, now time.Time) error {
	if ts == "" || sig == "" {
		return ErrMissingSignature
	}

	signedAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadTimestamp, err)
	}
	if skew := now.Sub(signedAt); skew > MaxClockSkew || skew < -MaxClockSkew {
		return ErrStaleTimestamp
	}

	want, err := hex.DecodeString(Sign(secret, ts, body))
	if err != nil {
		return err
	}
	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(want, got) {
		return ErrBadSignature
	}
	return nil
}
