package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN = 32768
	scryptR = 8
	scryptP = 1

	defaultSaltLength = 16
	passwordKeyLength = 64

	// Short-lived token secrets (email verification, password reset,
	// refresh tokens) are high volume and expire quickly, so they use a
	// cheaper salt/digest size than full password hashes.
	shortSaltLength = 8
	shortKeyLength  = 32

	// Passwords longer than this are rejected outright rather than hashed,
	// so an attacker cannot drive KDF cost with multi-megabyte inputs.
	MaxPasswordLength = 1024

	tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// PasswordHasher derives salted scrypt digests for stored credentials and
// short-lived opaque tokens. Records are encoded as "hex(salt):hex(digest)";
// verification recomputes the digest with the stored salt and compares in
// constant time.
type PasswordHasher struct {
	saltLength int
}

func NewPasswordHasher(saltLength int) *PasswordHasher {
	if saltLength <= 0 {
		saltLength = defaultSaltLength
	}
	return &PasswordHasher{saltLength: saltLength}
}

func (h *PasswordHasher) Hash(secret string) (string, error) {
	return h.derive(secret, h.saltLength, passwordKeyLength)
}

func (h *PasswordHasher) Verify(secret, record string) bool {
	return verifyRecord(secret, record, passwordKeyLength)
}

func (h *PasswordHasher) HashShortLived(secret string) (string, error) {
	return h.derive(secret, shortSaltLength, shortKeyLength)
}

func (h *PasswordHasher) VerifyShortLived(secret, record string) bool {
	return verifyRecord(secret, record, shortKeyLength)
}

func (h *PasswordHasher) derive(secret string, saltLen, keyLen int) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	digest, err := scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return "", fmt.Errorf("derive digest: %w", err)
	}
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(digest), nil
}

func verifyRecord(secret, record string, keyLen int) bool {
	saltHex, digestHex, ok := strings.Cut(record, ":")
	if !ok || saltHex == "" || digestHex == "" {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}
	digest, err := hex.DecodeString(digestHex)
	if err != nil {
		return false
	}
	computed, err := scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(computed, digest) == 1
}

// StrengthResult lists every rule the password failed. Each rule contributes
// at most one violation, so the list shape is deterministic.
type StrengthResult struct {
	OK         bool
	Violations []string
}

const (
	ViolationRequired = "password is required"
	ViolationLength   = "password must be at least 8 characters long"
	ViolationUpper    = "password must contain at least one uppercase letter"
	ViolationLower    = "password must contain at least one lowercase letter"
	ViolationDigit    = "password must contain at least one number"
	ViolationSymbol   = "password must contain at least one special character"
	ViolationTooLong  = "password must be at most 1024 characters long"
)

const symbolSet = "!@#$%^&*()_+-=[]{};':\"\\|,.<>/?`~"

func ValidateStrength(password string) StrengthResult {
	if password == "" {
		return StrengthResult{Violations: []string{
			ViolationRequired,
			ViolationLength,
			ViolationUpper,
			ViolationLower,
			ViolationDigit,
			ViolationSymbol,
		}}
	}
	var violations []string
	if len(password) > MaxPasswordLength {
		violations = append(violations, ViolationTooLong)
	}
	if len(password) < 8 {
		violations = append(violations, ViolationLength)
	}
	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(symbolSet, r):
			symbol = true
		}
	}
	if !upper {
		violations = append(violations, ViolationUpper)
	}
	if !lower {
		violations = append(violations, ViolationLower)
	}
	if !digit {
		violations = append(violations, ViolationDigit)
	}
	if !symbol {
		violations = append(violations, ViolationSymbol)
	}
	return StrengthResult{OK: len(violations) == 0, Violations: violations}
}

// GenerateToken draws length characters from a 62-symbol alphanumeric
// alphabet using crypto/rand, rejection-sampled to keep the draw uniform.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	out := make([]byte, 0, length)
	buf := make([]byte, length)
	// 248 is the largest multiple of 62 below 256; bytes at or above it
	// would bias the draw and are discarded.
	const limit = 248
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
