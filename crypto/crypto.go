package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/scrypt"
)

const (
	// KeySize is the AES-256 key length every cipher operation uses.
	KeySize = 32

	// TokenSeparator joins the base64 IV and base64 ciphertext segments
	// of a value token. The token shape is a compatibility contract with
	// the server-side encryptor and must not change.
	TokenSeparator = ":"

	keyPadByte = '0'
)

// DeriveKey normalizes a secret string to exactly KeySize bytes. Secrets
// of KeySize bytes or more are truncated; shorter secrets are right-padded
// with ASCII '0'. Truncation operates on UTF-8 bytes, not code points,
// to stay interoperable with the server-side key derivation.
func DeriveKey(secret string) []byte {
	key := make([]byte, KeySize)
	n := copy(key, secret)
	for i := n; i < KeySize; i++ {
		key[i] = keyPadByte
	}
	return key
}

// GenerateKey generates a random 32 byte key and returns it as a base64 encoded string.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	if err != nil {
		return "", fmt.Errorf("error reading random bytes: %w", err)
	}
	return EncodeValue(key), nil
}

// DerivePassphraseKey derives a strong 32 byte key from the provided passphrase
// and salt and returns the key and salt as base64 encoded strings.
// If salt is nil, a random salt will be generated.
// The base64 output is always longer than KeySize characters, so it can be
// used directly as the shared secret for EncryptValue and DecryptValue.
func DerivePassphraseKey(passphrase, salt []byte) (string, string, error) {
	if salt == nil {
		salt = make([]byte, 32)
		if _, err := rand.Read(salt); err != nil {
			return "", "", err
		}
	}

	key, err := scrypt.Key(passphrase, salt, 1048576, 8, 1, KeySize)
	if err != nil {
		return "", "", err
	}

	return EncodeValue(key), EncodeValue(salt), nil
}

// EncodeValue encodes a byte slice as a base64 encoded string.
func EncodeValue(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeValue decodes a base64 encoded string into a byte slice.
func DecodeValue(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// EncryptValue encrypts a string using AES-256-CBC with PKCS#7 padding and
// returns a self-contained token of the form base64(iv):base64(ciphertext).
// A fresh random IV is generated on every call, so encrypting the same
// plaintext twice yields different tokens.
func EncryptValue(secret string, text string) (string, error) {
	plaintext := []byte(text)
	// verify that the plaintext is not too long to fit in an int
	if len(plaintext) > 64*1024*1024 {
		return "", fmt.Errorf("plaintext too long to encrypt")
	}

	block, err := aes.NewCipher(DeriveKey(secret))
	if err != nil {
		return "", fmt.Errorf("error creating new cipher: %w", err)
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("error reading random bytes: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	return EncodeValue(iv) + TokenSeparator + EncodeValue(ciphertext), nil
}

// DecryptValue decrypts a token produced by EncryptValue (or the server-side
// encryptor sharing the same key derivation and cipher mode) and returns the
// original plaintext.
//
// Every failure surfaces as a *TokenError carrying the same generic message,
// so callers cannot distinguish a bad key from corrupted ciphertext through
// the error text. Use errors.Is against ErrInvalidToken, ErrDecryptionFailed,
// or ErrInvalidEncoding for programmatic classification, and TokenError.Cause
// for operator-side diagnostics.
func DecryptValue(secret string, token string) (string, error) {
	ivPart, cipherPart, found := strings.Cut(token, TokenSeparator)
	if !found || ivPart == "" || cipherPart == "" {
		return "", NewTokenError(ErrInvalidToken, fmt.Errorf("token is not in iv%sciphertext form", TokenSeparator))
	}

	iv, err := DecodeValue(ivPart)
	if err != nil {
		return "", NewTokenError(ErrInvalidToken, fmt.Errorf("decoding iv segment: %w", err))
	}
	ciphertext, err := DecodeValue(cipherPart)
	if err != nil {
		return "", NewTokenError(ErrInvalidToken, fmt.Errorf("decoding ciphertext segment: %w", err))
	}

	if len(iv) != aes.BlockSize {
		return "", NewTokenError(ErrDecryptionFailed, fmt.Errorf("iv is %d bytes, want %d", len(iv), aes.BlockSize))
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", NewTokenError(ErrDecryptionFailed, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(ciphertext)))
	}

	block, err := aes.NewCipher(DeriveKey(secret))
	if err != nil {
		return "", NewTokenError(ErrDecryptionFailed, fmt.Errorf("error creating new cipher: %w", err))
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	plaintext, err = pkcs7Unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", NewTokenError(ErrDecryptionFailed, err)
	}

	if !utf8.Valid(plaintext) {
		return "", NewTokenError(ErrInvalidEncoding, fmt.Errorf("decrypted bytes are not valid UTF-8"))
	}

	return string(plaintext), nil
}

// pkcs7Pad extends data to a multiple of blockSize. Data that is already
// block-aligned gains a full block of padding, so unpadding is unambiguous.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("padded data length %d is not a multiple of the block size", len(data))
	}

	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize {
		return nil, fmt.Errorf("invalid padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("inconsistent padding bytes")
		}
	}

	return data[:len(data)-padLen], nil
}
