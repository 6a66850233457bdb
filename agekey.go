package envcipher

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// IdentityResolver resolves age identities used to unwrap age key files.
type IdentityResolver struct {
	sources []IdentitySource
}

func NewIdentityResolver(sources []IdentitySource) *IdentityResolver {
	if len(sources) == 0 {
		sources = []IdentitySource{
			{Type: string(SourceEnv), Name: DefaultIdentityEnv},
		}
	}
	return &IdentityResolver{sources: sources}
}

// DefaultIdentityEnv is the environment variable consulted for an age
// identity when an age key source does not configure identity sources.
const DefaultIdentityEnv = "ENVCIPHER_IDENTITY"

func (r *IdentityResolver) ResolveIdentities() ([]age.Identity, error) {
	var identities []age.Identity

	for _, source := range r.sources {
		switch source.Type {
		case string(SourceEnv):
			if id := r.fromEnvironment(source.Name); id != nil {
				identities = append(identities, id)
			}
		case string(SourceFile):
			if id, err := r.fromFile(source.Path); err != nil {
				return nil, fmt.Errorf("failed to read identity from file %s: %w", source.Path, err)
			} else if id != nil {
				identities = append(identities, id)
			}
		}
	}

	if len(identities) == 0 {
		return nil, fmt.Errorf("%w: no valid identities found", ErrNoKey)
	}

	return identities, nil
}

func (r *IdentityResolver) fromEnvironment(envVar string) age.Identity {
	if envVar == "" {
		envVar = DefaultIdentityEnv
	}

	keyStr := os.Getenv(envVar)
	if keyStr == "" {
		return nil
	}

	identity, err := age.ParseX25519Identity(keyStr)
	if err != nil {
		return nil
	}

	return identity
}

func (r *IdentityResolver) fromFile(path string) (age.Identity, error) {
	if path == "" {
		return nil, fmt.Errorf("identity file path cannot be empty")
	}

	expandedPath, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to expand identity file path %s: %w", path, err)
	}

	keyBytes, err := os.ReadFile(filepath.Clean(expandedPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read identity file %s: %w", expandedPath, err)
	}

	identity, err := age.ParseX25519Identity(strings.TrimSpace(string(keyBytes)))
	if err != nil {
		return nil, fmt.Errorf("invalid identity in file %s: %w", expandedPath, err)
	}

	return identity, nil
}

// readAgeKeyFile unwraps the shared secret key from an age-encrypted key
// file, decrypting with identities resolved per the source configuration.
func readAgeKeyFile(source KeySource) (string, error) {
	expandedPath, err := expandPath(source.Path)
	if err != nil {
		return "", fmt.Errorf("failed to expand age key file path %s: %w", source.Path, err)
	}

	data, err := os.ReadFile(filepath.Clean(expandedPath))
	if err != nil {
		return "", fmt.Errorf("failed to read age key file %s: %w", expandedPath, err)
	}

	identities, err := NewIdentityResolver(source.Identities).ResolveIdentities()
	if err != nil {
		return "", err
	}

	reader, err := age.Decrypt(bytes.NewReader(data), identities...)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt age key file - do you have the right identity?: %w", err)
	}

	keyBytes, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read decrypted key: %w", err)
	}

	return strings.TrimSpace(string(keyBytes)), nil
}

// WriteAgeKeyFile wraps the shared secret key for the given age recipients
// and writes it to path. The file is written atomically with 0600 mode.
func WriteAgeKeyFile(path, key string, recipientKeys []string) error {
	if len(recipientKeys) == 0 {
		return fmt.Errorf("no recipients available for encryption, please add at least one recipient")
	}

	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, recipientStr := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(recipientStr)
		if err != nil {
			return fmt.Errorf("invalid recipient %s: %w", recipientStr, err)
		}
		recipients = append(recipients, recipient)
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipients...)
	if err != nil {
		return fmt.Errorf("failed to create age encryptor: %w", err)
	}
	if _, err := w.Write([]byte(key)); err != nil {
		return fmt.Errorf("failed to encrypt key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize encryption: %w", err)
	}

	expandedPath, err := expandPath(path)
	if err != nil {
		return fmt.Errorf("failed to expand age key file path %s: %w", path, err)
	}

	if err := os.MkdirAll(filepath.Dir(expandedPath), 0750); err != nil {
		return fmt.Errorf("failed to create key file directory: %w", err)
	}
	tempFile := expandedPath + ".tmp"
	if err := os.WriteFile(tempFile, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write temp key file: %w", err)
	}

	if err := os.Rename(tempFile, expandedPath); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to move key file: %w", err)
	}

	return nil
}
