package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	accessHashVersion = "v1"
	iterations        = 210000
	minIterations     = 100000
	minAccessKeyLen   = 12
)

// HashAccessKey derives a storable hash of the shared access password in the
// form v1$iterations$salt$digest.
func HashAccessKey(key string) (string, error) {
	if len(key) < minAccessKeyLen {
		return "", fmt.Errorf("access password must be at least %d characters", minAccessKeyLen)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	digest := pbkdf2.Key([]byte(key), salt, iterations, sha256.Size, sha256.New)
	return fmt.Sprintf("%s$%d$%s$%s",
		accessHashVersion,
		iterations,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest)), nil
}

func VerifyAccessKey(key, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 4 || parts[0] != accessHashVersion {
		return false
	}

	iters, err := strconv.Atoi(parts[1])
	if err != nil || iters < minIterations {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(salt) == 0 {
		return false
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(expected) != sha256.Size {
		return false
	}

	actual := pbkdf2.Key([]byte(key), salt, iters, sha256.Size, sha256.New)
	return subtle.ConstantTimeCompare(actual, expected) == 1
}

// NewSecret returns n random bytes encoded with standard base64, suitable
// for DESGLOSE_CSRF_KEY.
func NewSecret(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("secret length must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// DecodeSecret reverses NewSecret and checks the decoded length.
func DecodeSecret(encoded string, n int) ([]byte, error) {
	buf, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decode secret: %w", err)
	}
	if len(buf) != n {
		return nil, fmt.Errorf("secret must be %d bytes, got %d", n, len(buf))
	}
	return buf, nil
}
