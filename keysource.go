package envcipher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zalando/go-keyring"

	"github.com/hirelens/envcipher/crypto"
)

// KeyResolver resolves candidate secret keys from an ordered list of
// configured sources. Sources that yield nothing are skipped; resolution
// only fails when no source produces a key.
type KeyResolver struct {
	sources []KeySource
}

func NewKeyResolver(sources []KeySource) *KeyResolver {
	if len(sources) == 0 {
		sources = []KeySource{
			{Type: SourceEnv, Name: DefaultKeyEnv},
		}
	}
	return &KeyResolver{
		sources: sources,
	}
}

func (r *KeyResolver) ResolveKeys() ([]Secret, error) {
	var keys []Secret

	for i := range r.sources {
		source := r.sources[i]
		switch source.Type {
		case SourceEnv:
			if key := r.fromEnvironment(source.Name); key != "" {
				keys = append(keys, NewSecretValue([]byte(key)))
			}
		case SourceFile:
			if key, err := r.fromFile(source.Path); err == nil && key != "" {
				keys = append(keys, NewSecretValue([]byte(key)))
			}
		case SourceDotenv:
			if key, err := r.fromDotenv(source.Path, source.Name); err == nil && key != "" {
				keys = append(keys, NewSecretValue([]byte(key)))
			}
		case SourceKeyring:
			if key, err := r.fromKeyring(source.Service, source.Name); err == nil && key != "" {
				keys = append(keys, NewSecretValue([]byte(key)))
			}
		case SourceAge:
			if key, err := readAgeKeyFile(source); err == nil && key != "" {
				keys = append(keys, NewSecretValue([]byte(key)))
			}
		case SourceCommand:
			if key, err := resolveCommandKey(source.Command); err == nil && key != "" {
				keys = append(keys, NewSecretValue([]byte(key)))
			}
		}
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no key sources resolved", ErrNoKey)
	}

	return keys, nil
}

// TryDecrypt attempts to decrypt the token with every resolved key in
// source order and returns the first successful plaintext along with the
// key that produced it. Configuring the previous and the current key side
// by side is how callers ride out a key change while tokens are re-issued.
func (r *KeyResolver) TryDecrypt(token string) (string, Secret, error) {
	keys, err := r.ResolveKeys()
	if err != nil {
		return "", nil, err
	}

	var lastErr error
	for _, key := range keys {
		plaintext, err := crypto.DecryptValue(key.PlainTextString(), token)
		if err != nil {
			lastErr = err
			continue // try the next key
		}
		return plaintext, key, nil
	}

	return "", nil, lastErr
}

func (r *KeyResolver) fromEnvironment(envVar string) string {
	if envVar == "" {
		envVar = DefaultKeyEnv
	}

	return os.Getenv(envVar)
}

func (r *KeyResolver) fromFile(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("key file path cannot be empty")
	}

	expandedPath, err := expandPath(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand key file path %s: %w", path, err)
	}

	keyBytes, err := os.ReadFile(filepath.Clean(expandedPath))
	if err != nil {
		return "", fmt.Errorf("failed to read key file %s: %w", expandedPath, err)
	}

	return strings.TrimSpace(string(keyBytes)), nil
}

func (r *KeyResolver) fromDotenv(path, name string) (string, error) {
	expandedPath, err := expandPath(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand dotenv path %s: %w", path, err)
	}

	env, err := godotenv.Read(filepath.Clean(expandedPath))
	if err != nil {
		return "", fmt.Errorf("failed to read dotenv file %s: %w", expandedPath, err)
	}

	return strings.TrimSpace(env[name]), nil
}

func (r *KeyResolver) fromKeyring(service, name string) (string, error) {
	if service == "" {
		service = DefaultKeyringService
	}

	key, err := keyring.Get(service, name)
	if err != nil {
		return "", fmt.Errorf("failed to get key from keyring: %w", err)
	}

	return key, nil
}

// StoreKeyringKey provisions the shared secret key into the OS keyring so
// a keyring source can resolve it later.
func StoreKeyringKey(service, name, key string) error {
	if service == "" {
		service = DefaultKeyringService
	}
	if name == "" {
		return fmt.Errorf("keyring entry name cannot be empty")
	}

	if err := keyring.Set(service, name, key); err != nil {
		return fmt.Errorf("failed to store key in keyring: %w", err)
	}

	return nil
}
