package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/goliatone/go-adconnect/core"
)

type Option func(*AppKeySecretProvider)

// AppKeySecretProvider seals access tokens with AES-256-GCM under an
// application key. Tokens sealed under a retired key stay readable while the
// retired key's rotation window allows it.
type AppKeySecretProvider struct {
	key     []byte
	keyID   string
	version int
	retired map[keyRef]retiredKey
	now     func() time.Time
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			provider.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.version = version
		}
	}
}

// WithRetiredKey registers a previous key for decryption only.
func WithRetiredKey(keyMaterial []byte, keyID string, version int, window KeyRotationWindow) Option {
	return func(provider *AppKeySecretProvider) {
		material := bytes.TrimSpace(keyMaterial)
		keyID = strings.TrimSpace(keyID)
		if len(material) == 0 || keyID == "" || version <= 0 {
			return
		}
		if provider.retired == nil {
			provider.retired = map[keyRef]retiredKey{}
		}
		provider.retired[keyRef{keyID: keyID, version: version}] = retiredKey{
			key:    normalizeKey(material),
			window: window,
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(provider *AppKeySecretProvider) {
		if now != nil {
			provider.now = now
		}
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	provider := &AppKeySecretProvider{
		key:     normalizeKey(key),
		keyID:   "app-key",
		version: 1,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	if _, clash := provider.retired[provider.active()]; clash {
		return nil, fmt.Errorf("security: retired key %s collides with the active key", provider.active())
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	gcm, err := newGCM(p.key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, p.additionalData(p.active()))
	return encodeEnvelope(envelope{
		KeyID:      p.keyID,
		Version:    p.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      encodeBase64(nonce),
		Ciphertext: encodeBase64(sealed),
	})
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	parsed, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}

	ref := keyRef{keyID: parsed.KeyID, version: parsed.Version}
	key, err := p.keyFor(ref)
	if err != nil {
		return nil, err
	}

	nonce, err := decodeBase64("nonce", parsed.Nonce)
	if err != nil {
		return nil, err
	}
	payload, err := decodeBase64("ciphertext", parsed.Ciphertext)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("security: invalid nonce length %d", len(nonce))
	}
	plaintext, err := gcm.Open(nil, nonce, payload, p.additionalData(ref))
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.keyID
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.version
}

func (p *AppKeySecretProvider) Metadata() (string, int) {
	return p.KeyID(), p.Version()
}

func (p *AppKeySecretProvider) active() keyRef {
	return keyRef{keyID: p.keyID, version: p.version}
}

func (p *AppKeySecretProvider) keyFor(ref keyRef) ([]byte, error) {
	if ref == p.active() {
		return p.key, nil
	}
	retired, ok := p.retired[ref]
	if !ok {
		return nil, fmt.Errorf("security: unknown key %s, active key is %s", ref, p.active())
	}
	if !retired.window.Allows(p.now()) {
		return nil, fmt.Errorf("security: key %s is outside its rotation window", ref)
	}
	return retired.key, nil
}

// additionalData binds the ciphertext to its key reference so a tampered
// kid or ver fails authentication.
func (p *AppKeySecretProvider) additionalData(ref keyRef) []byte {
	return []byte(envelopePrefix + ref.String())
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func normalizeKey(value []byte) []byte {
	if len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var (
	_ core.SecretProvider         = (*AppKeySecretProvider)(nil)
	_ core.SecretMetadataProvider = (*AppKeySecretProvider)(nil)
)
