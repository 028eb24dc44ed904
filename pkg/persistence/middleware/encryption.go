package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/quarrydata/quarry/pkg/domain"
	"github.com/quarrydata/quarry/pkg/ports"
)

// EncryptionConfig holds the keys for sealing and unsealing checkpoints.
type EncryptionConfig struct {
	// ActiveKey encrypts new checkpoints. Must be 32 bytes (AES-256).
	ActiveKey []byte

	// FallbackKeys are tried in order when the active key cannot decrypt,
	// enabling zero-downtime key rotation.
	FallbackKeys [][]byte
}

// ParseKey decodes a configured key string: 64 hex characters or the base64
// form, either way 32 key bytes.
func ParseKey(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("middleware: empty encryption key")
	}
	if raw, err := hex.DecodeString(s); err == nil && len(raw) == 32 {
		return raw, nil
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil && len(raw) == 32 {
		return raw, nil
	}
	return nil, errors.New("middleware: encryption key must decode to 32 bytes (hex or base64)")
}

type encryptionMiddleware struct {
	next   ports.CheckpointStore
	config EncryptionConfig
}

// NewEncryptionMiddleware seals checkpoint state with AES-GCM before it
// reaches the underlying store. Run, session, sequence and node metadata
// stay in the clear so listing and monitoring keep working; everything the
// user said or the graph computed is in the sealed payload.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("middleware: active key must be 32 bytes (AES-256)")
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &encryptionMiddleware{next: next, config: config}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, cp *domain.Checkpoint) error {
	if cp == nil {
		return errors.New("middleware: nil checkpoint")
	}

	plaintext, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("middleware: marshal state: %w", err)
	}
	ciphertext, err := encrypt(plaintext, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("middleware: encrypt state: %w", err)
	}

	sealed := *cp
	sealed.State = nil
	sealed.Sealed = base64.StdEncoding.EncodeToString(ciphertext)
	return m.next.Save(ctx, &sealed)
}

func (m *encryptionMiddleware) Load(ctx context.Context, runID string) (*domain.Checkpoint, error) {
	cp, err := m.next.Load(ctx, runID)
	if err != nil {
		return nil, err
	}

	// Fail secure: with encryption configured, an unsealed checkpoint is
	// treated as corrupt rather than passed through.
	if cp.Sealed == "" {
		return nil, fmt.Errorf("middleware: checkpoint %s has no sealed payload", runID)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(cp.Sealed)
	if err != nil {
		return nil, fmt.Errorf("middleware: decode sealed payload: %w", err)
	}
	plaintext, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("middleware: unseal checkpoint %s: %w", runID, err)
	}

	st := new(domain.ExecutionState)
	if err := json.Unmarshal(plaintext, st); err != nil {
		return nil, fmt.Errorf("middleware: unmarshal sealed state: %w", err)
	}
	cp.State = st
	cp.Sealed = ""
	return cp, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, runID string) error {
	return m.next.Delete(ctx, runID)
}

func (m *encryptionMiddleware) ListRuns(ctx context.Context) ([]string, error) {
	return m.next.ListRuns(ctx)
}

func encrypt(plaintext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}
