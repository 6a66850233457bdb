package envcipher_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hirelens/envcipher"
	"github.com/hirelens/envcipher/crypto"
)

func TestKeyResolverFromEnvironment(t *testing.T) {
	t.Setenv("TEST_ENVCIPHER_KEY", testSecret)

	resolver := envcipher.NewKeyResolver([]envcipher.KeySource{
		{Type: envcipher.SourceEnv, Name: "TEST_ENVCIPHER_KEY"},
	})

	keys, err := resolver.ResolveKeys()
	if err != nil {
		t.Fatalf("Failed to resolve keys: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("Expected 1 key, got %d", len(keys))
	}
	if keys[0].PlainTextString() != testSecret {
		t.Errorf("Expected key %s, got %s", testSecret, keys[0].PlainTextString())
	}
	if keys[0].String() == testSecret {
		t.Error("Key should be masked in its string form")
	}
}

func TestKeyResolverFromFile(t *testing.T) {
	tempDir := t.TempDir()

	keyFile := filepath.Join(tempDir, "key.txt")
	if err := os.WriteFile(keyFile, []byte(testSecret+"\n"), 0600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}

	resolver := envcipher.NewKeyResolver([]envcipher.KeySource{
		{Type: envcipher.SourceFile, Path: keyFile},
	})

	keys, err := resolver.ResolveKeys()
	if err != nil {
		t.Fatalf("Failed to resolve keys from file: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("Expected 1 key from file, got %d", len(keys))
	}
	if keys[0].PlainTextString() != testSecret {
		t.Errorf("Expected trimmed key from file, got %q", keys[0].PlainTextString())
	}
}

func TestKeyResolverFromDotenv(t *testing.T) {
	tempDir := t.TempDir()

	envFile := filepath.Join(tempDir, ".env")
	content := "APP_ENV=production\nENVCIPHER_KEY=" + testSecret + "\n"
	if err := os.WriteFile(envFile, []byte(content), 0600); err != nil {
		t.Fatalf("Failed to write dotenv file: %v", err)
	}

	resolver := envcipher.NewKeyResolver([]envcipher.KeySource{
		{Type: envcipher.SourceDotenv, Path: envFile, Name: "ENVCIPHER_KEY"},
	})

	keys, err := resolver.ResolveKeys()
	if err != nil {
		t.Fatalf("Failed to resolve keys from dotenv: %v", err)
	}
	if len(keys) != 1 {
		t.Fatalf("Expected 1 key from dotenv, got %d", len(keys))
	}
	if keys[0].PlainTextString() != testSecret {
		t.Errorf("Expected dotenv key, got %q", keys[0].PlainTextString())
	}
}

func TestKeyResolverMultipleSources(t *testing.T) {
	tempDir := t.TempDir()

	keyFile := filepath.Join(tempDir, "key.txt")
	if err := os.WriteFile(keyFile, []byte("file-key"), 0600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}
	t.Setenv("TEST_ENVCIPHER_KEY", "env-key")

	resolver := envcipher.NewKeyResolver([]envcipher.KeySource{
		{Type: envcipher.SourceEnv, Name: "NONEXISTENT_KEY"},
		{Type: envcipher.SourceFile, Path: keyFile},
		{Type: envcipher.SourceEnv, Name: "TEST_ENVCIPHER_KEY"},
		{Type: envcipher.SourceFile, Path: filepath.Join(tempDir, "missing.txt")},
	})

	keys, err := resolver.ResolveKeys()
	if err != nil {
		t.Fatalf("Failed to resolve keys from multiple sources: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("Expected 2 keys from multiple sources, got %d", len(keys))
	}
	if keys[0].PlainTextString() != "file-key" || keys[1].PlainTextString() != "env-key" {
		t.Error("Keys should resolve in source order")
	}
}

func TestKeyResolverNoKeys(t *testing.T) {
	resolver := envcipher.NewKeyResolver([]envcipher.KeySource{
		{Type: envcipher.SourceEnv, Name: "DEFINITELY_NOT_SET_ANYWHERE"},
	})

	_, err := resolver.ResolveKeys()
	if err == nil {
		t.Fatal("Expected error when no source resolves")
	}
	if !errors.Is(err, envcipher.ErrNoKey) {
		t.Errorf("Expected ErrNoKey, got %v", err)
	}
}

func TestKeyResolverTryDecrypt(t *testing.T) {
	token, err := crypto.EncryptValue(testSecret, "rotate-me")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	// The stale key comes first; TryDecrypt should fall through to the
	// key that actually works.
	t.Setenv("STALE_KEY", "previous-shared-key")
	t.Setenv("CURRENT_KEY", testSecret)

	resolver := envcipher.NewKeyResolver([]envcipher.KeySource{
		{Type: envcipher.SourceEnv, Name: "STALE_KEY"},
		{Type: envcipher.SourceEnv, Name: "CURRENT_KEY"},
	})

	plaintext, key, err := resolver.TryDecrypt(token)
	if err != nil {
		t.Fatalf("Failed to decrypt with any key: %v", err)
	}
	if plaintext != "rotate-me" {
		t.Errorf("Expected %q, got %q", "rotate-me", plaintext)
	}
	if key.PlainTextString() != testSecret {
		t.Error("TryDecrypt should report the key that worked")
	}
}

func TestKeyResolverTryDecryptAllKeysFail(t *testing.T) {
	token, err := crypto.EncryptValue(testSecret, "unreachable")
	if err != nil {
		t.Fatalf("Failed to encrypt: %v", err)
	}

	t.Setenv("WRONG_KEY_ONE", "wrong-key-1")
	t.Setenv("WRONG_KEY_TWO", "wrong-key-2")

	resolver := envcipher.NewKeyResolver([]envcipher.KeySource{
		{Type: envcipher.SourceEnv, Name: "WRONG_KEY_ONE"},
		{Type: envcipher.SourceEnv, Name: "WRONG_KEY_TWO"},
	})

	_, _, err = resolver.TryDecrypt(token)
	if err == nil {
		t.Fatal("Expected TryDecrypt to fail when no key works")
	}
	if err.Error() != "failed to decrypt; verify the key" {
		t.Errorf("Expected the generic decryption message, got %q", err.Error())
	}
}

func TestKeyResolverDefaultsToKeyEnv(t *testing.T) {
	t.Setenv(envcipher.DefaultKeyEnv, testSecret)

	resolver := envcipher.NewKeyResolver(nil)
	keys, err := resolver.ResolveKeys()
	if err != nil {
		t.Fatalf("Failed to resolve default key: %v", err)
	}
	if len(keys) != 1 || keys[0].PlainTextString() != testSecret {
		t.Errorf("Expected the default env key, got %v", keys)
	}
}
