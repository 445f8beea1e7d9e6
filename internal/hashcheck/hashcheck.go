// Package hashcheck validates stored email digests against a recomputed
// SHA-256 of the normalized email, per side, to show which dataset carries
// a corrupted hash column.
package hashcheck

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/record-overlap/internal/normalize"
)

// DigestLength is the hex length of a SHA-256 digest.
const DigestLength = 64

// Reason classifies why a stored hash failed validation.
type Reason string

const (
	ReasonValid    Reason = "valid"
	ReasonMissing  Reason = "missing"
	ReasonFormat   Reason = "format"
	ReasonMismatch Reason = "mismatch"
)

// HashFormatError reports a stored hash that is not a 64 character hex
// digest. It is counted as invalid, never as a processing failure.
type HashFormatError struct {
	Value string
}

func (e *HashFormatError) Error() string {
	return fmt.Sprintf("hash %q is not a %d character hex digest", Truncate(e.Value, 16), DigestLength)
}

// Digest returns the upper-case hex SHA-256 of the normalized email.
func Digest(email string) string {
	sum := sha256.Sum256([]byte(normalize.NormalizeEmail(email)))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// ValidateFormat checks that h is a 64 character hex digest.
func ValidateFormat(h string) error {
	h = strings.TrimSpace(h)
	if len(h) != DigestLength {
		return &HashFormatError{Value: h}
	}
	for _, r := range h {
		if !isHex(r) {
			return &HashFormatError{Value: h}
		}
	}
	return nil
}

// Verify compares a stored hash against the expected digest.
func Verify(expected, stored string, present bool) Reason {
	if !present || strings.TrimSpace(stored) == "" {
		return ReasonMissing
	}
	if err := ValidateFormat(stored); err != nil {
		return ReasonFormat
	}
	if strings.ToUpper(strings.TrimSpace(stored)) != strings.ToUpper(expected) {
		return ReasonMismatch
	}
	return ReasonValid
}

// Pattern classifies a stored hash by shape.
type Pattern string

const (
	PatternSHA256Upper Pattern = "SHA256_UPPER"
	PatternSHA256Lower Pattern = "SHA256_LOWER"
	PatternSHA256Mixed Pattern = "SHA256_MIXED"
	PatternMD5         Pattern = "MD5"
	PatternOther       Pattern = "OTHER"
)

// Classify returns the pattern of a stored hash.
func Classify(h string) Pattern {
	h = strings.TrimSpace(h)
	switch {
	case len(h) == DigestLength && ValidateFormat(h) == nil:
		switch {
		case h == strings.ToUpper(h):
			return PatternSHA256Upper
		case h == strings.ToLower(h):
			return PatternSHA256Lower
		default:
			return PatternSHA256Mixed
		}
	case len(h) == 32:
		return PatternMD5
	default:
		return PatternOther
	}
}

// Truncate shortens s to n characters followed by "...".
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}
