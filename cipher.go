package envcipher

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/hirelens/envcipher/crypto"
)

// Cipher is the high-level entry point for encrypting and decrypting
// environment-variable values. It combines the value cipher with key
// resolution: explicitly provided keys are tried first, then keys from
// configured sources, in order.
//
// A Cipher is safe for concurrent use; every operation is a pure
// transformation over read-only configuration.
type Cipher struct {
	keys     []Secret
	resolver *KeyResolver
	log      logrus.FieldLogger
}

type settings struct {
	keys    []string
	sources []KeySource
	log     logrus.FieldLogger
}

type Option func(*settings)

// New creates a new Cipher with the provided options. When no key or key
// source is configured, the DefaultKeyEnv environment variable is used.
func New(opts ...Option) (*Cipher, error) {
	s := &settings{}
	for _, opt := range opts {
		opt(s)
	}

	cfg := Config{KeySources: s.sources}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	keys := make([]Secret, 0, len(s.keys))
	for _, key := range s.keys {
		if key == "" {
			return nil, fmt.Errorf("%w: secret key cannot be empty", ErrInvalidConfig)
		}
		keys = append(keys, NewSecretValue([]byte(key)))
	}

	var resolver *KeyResolver
	if len(s.sources) > 0 || len(keys) == 0 {
		resolver = NewKeyResolver(s.sources)
	}

	log := s.log
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	return &Cipher{
		keys:     keys,
		resolver: resolver,
		log:      log,
	}, nil
}

// WithKey provides the shared secret key directly.
func WithKey(key string) Option {
	return func(s *settings) {
		s.keys = append(s.keys, key)
	}
}

// WithConfig appends the key sources from a loaded configuration.
func WithConfig(cfg Config) Option {
	return func(s *settings) {
		s.sources = append(s.sources, cfg.KeySources...)
	}
}

// WithKeyFromEnv specifies to retrieve the key from an environment variable.
func WithKeyFromEnv(envVar string) Option {
	return func(s *settings) {
		s.sources = append(s.sources, KeySource{Type: SourceEnv, Name: envVar})
	}
}

// WithKeyFromFile specifies to retrieve the key from a plaintext file.
func WithKeyFromFile(path string) Option {
	return func(s *settings) {
		s.sources = append(s.sources, KeySource{Type: SourceFile, Path: path})
	}
}

// WithKeyFromDotenv specifies to retrieve the key from a variable in a
// dotenv file.
func WithKeyFromDotenv(path, name string) Option {
	return func(s *settings) {
		s.sources = append(s.sources, KeySource{Type: SourceDotenv, Path: path, Name: name})
	}
}

// WithKeyFromKeyring specifies to retrieve the key from the OS keyring.
func WithKeyFromKeyring(service, name string) Option {
	return func(s *settings) {
		s.sources = append(s.sources, KeySource{Type: SourceKeyring, Service: service, Name: name})
	}
}

// WithKeyFromAgeFile specifies to retrieve the key from an age-encrypted
// key file, unwrapped with the given identity sources.
func WithKeyFromAgeFile(path string, identities ...IdentitySource) Option {
	return func(s *settings) {
		s.sources = append(s.sources, KeySource{Type: SourceAge, Path: path, Identities: identities})
	}
}

// WithKeyFromCommand specifies to obtain the key by running a command.
func WithKeyFromCommand(cfg *CommandConfig) Option {
	return func(s *settings) {
		s.sources = append(s.sources, KeySource{Type: SourceCommand, Command: cfg})
	}
}

// WithLogger sets the logger used for operator-side diagnostics. Cipher
// failures are logged at debug level; the user-facing error stays generic.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *settings) {
		s.log = log
	}
}

func (c *Cipher) resolveKeys() ([]Secret, error) {
	keys := make([]Secret, 0, len(c.keys))
	keys = append(keys, c.keys...)

	if c.resolver != nil {
		resolved, err := c.resolver.ResolveKeys()
		if err != nil {
			if len(keys) == 0 {
				return nil, err
			}
		} else {
			keys = append(keys, resolved...)
		}
	}

	return keys, nil
}

// Encrypt encrypts plaintext under the first available key and returns a
// ciphertext token.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	keys, err := c.resolveKeys()
	if err != nil {
		return "", err
	}

	return crypto.EncryptValue(keys[0].PlainTextString(), plaintext)
}

// Decrypt decrypts a ciphertext token, trying every available key in
// order. The underlying failure cause of each attempt is logged at debug
// level; the returned error carries only the generic message.
func (c *Cipher) Decrypt(token string) (string, error) {
	keys, err := c.resolveKeys()
	if err != nil {
		return "", err
	}

	var lastErr error
	for _, key := range keys {
		plaintext, err := crypto.DecryptValue(key.PlainTextString(), token)
		if err != nil {
			c.logCause("value decryption attempt failed", err)
			lastErr = err
			continue
		}
		return plaintext, nil
	}

	return "", lastErr
}

// DecryptResponse decrypts every encrypted record in a backend response,
// trying each available key against the batch in order. Fail-fast within
// a key: the first record failure moves on to the next key, and the last
// error is returned when no key decrypts the full batch.
func (c *Cipher) DecryptResponse(resp *EnvResponse) (*EnvResponse, error) {
	keys, err := c.resolveKeys()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, key := range keys {
		out, err := DecryptResponse(resp, key.PlainTextString())
		if err != nil {
			c.logCause("batch decryption attempt failed", err)
			lastErr = err
			continue
		}
		return out, nil
	}

	return nil, lastErr
}

// DecryptResponseJSON decrypts a raw JSON response document, trying each
// available key in order.
func (c *Cipher) DecryptResponseJSON(data []byte) ([]byte, error) {
	keys, err := c.resolveKeys()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, key := range keys {
		out, err := DecryptResponseJSON(data, key.PlainTextString())
		if err != nil {
			c.logCause("batch decryption attempt failed", err)
			lastErr = err
			continue
		}
		return out, nil
	}

	return nil, lastErr
}

// Validate checks that at least one key is available and usable by
// round-tripping a probe value.
func (c *Cipher) Validate() error {
	keys, err := c.resolveKeys()
	if err != nil {
		return err
	}

	probe := "test-validation-data"
	encrypted, err := crypto.EncryptValue(keys[0].PlainTextString(), probe)
	if err != nil {
		return fmt.Errorf("key validation failed during encryption: %w", err)
	}

	decrypted, err := c.Decrypt(encrypted)
	if err != nil {
		return fmt.Errorf("key validation failed during decryption: %w", err)
	}

	if decrypted != probe {
		return fmt.Errorf("key validation failed: decrypted data does not match")
	}

	return nil
}

func (c *Cipher) logCause(msg string, err error) {
	var tokenErr *crypto.TokenError
	if errors.As(err, &tokenErr) && tokenErr.Cause() != nil {
		c.log.WithField("cause", tokenErr.Cause().Error()).Debug(msg)
		return
	}
	c.log.WithField("cause", err.Error()).Debug(msg)
}
