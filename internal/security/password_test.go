package security

import "testing"

func TestHashAccessKeyRequiresMinimumLength(t *testing.T) {
	if _, err := HashAccessKey("short"); err == nil {
		t.Fatalf("expected error for short access password")
	}
}

func TestHashAccessKeyAndVerify(t *testing.T) {
	key := "planta-norte-2024"
	hash, err := HashAccessKey(key)
	if err != nil {
		t.Fatalf("hash access key: %v", err)
	}
	if !VerifyAccessKey(key, hash) {
		t.Fatalf("expected verification to succeed")
	}
	if VerifyAccessKey("planta-sur-2024", hash) {
		t.Fatalf("expected wrong key verification to fail")
	}
}

func TestVerifyAccessKeyRejectsMalformedHashes(t *testing.T) {
	for _, encoded := range []string{
		"",
		"v1$210000$salt",
		"v2$210000$c2FsdA$ZGlnZXN0",
		"v1$10$c2FsdA$ZGlnZXN0",
		"v1$210000$c2FsdA$ZGlnZXN0",
	} {
		if VerifyAccessKey("planta-norte-2024", encoded) {
			t.Fatalf("expected %q to be rejected", encoded)
		}
	}
}

func TestSecretRoundTrip(t *testing.T) {
	encoded, err := NewSecret(32)
	if err != nil {
		t.Fatalf("new secret: %v", err)
	}
	buf, err := DecodeSecret(encoded, 32)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	if len(buf) != 32 {
		t.Fatalf("expected 32 bytes, got %d", len(buf))
	}
	if _, err := DecodeSecret(encoded, 16); err == nil {
		t.Fatalf("expected length mismatch error")
	}
}
