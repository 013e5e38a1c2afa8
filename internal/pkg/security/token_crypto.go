package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
)

// Token storage modes. With a configured 32-byte key tokens are sealed with
// AES-GCM (random nonce prepended to the ciphertext); without one they are
// base64-opaqued so raw tokens never appear as plain column values.
const (
	ModeAESGCM = "aesgcm"
	ModeBase64 = "base64"
)

// ParseKey accepts a 32-byte key as base64, hex or raw UTF-8. It returns nil
// when no usable key is configured.
func ParseKey(raw string) []byte {
	if raw == "" {
		return nil
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil && len(b) == 32 {
		return b
	}
	if b, err := hex.DecodeString(raw); err == nil && len(b) == 32 {
		return b
	}
	if len(raw) == 32 {
		return []byte(raw)
	}
	return nil
}

// EncodeToken encodes a token for storage and reports the mode used.
func EncodeToken(token string, key []byte) (string, string, error) {
	if token == "" {
		return "", "", errors.New("token is required")
	}
	if len(key) != 32 {
		return base64.StdEncoding.EncodeToString([]byte(token)), ModeBase64, nil
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(token), nil)
	return base64.StdEncoding.EncodeToString(sealed), ModeAESGCM, nil
}

// DecodeToken reverses EncodeToken. Decode failures (wrong key, corrupted
// value, unknown mode) return an empty string instead of an error so callers
// can treat them as "no token available". Base64 values remain readable even
// when a key is configured, for backward compatibility.
func DecodeToken(encoded, mode string, key []byte) string {
	if encoded == "" {
		return ""
	}
	switch mode {
	case ModeAESGCM:
		return decodeAESGCM(encoded, key)
	case ModeBase64, "":
		b, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

func decodeAESGCM(encoded string, key []byte) string {
	if len(key) != 32 {
		return ""
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return ""
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return ""
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return ""
	}
	if len(raw) < gcm.NonceSize() {
		return ""
	}
	nonce, ciphertext := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return ""
	}
	return string(plain)
}
