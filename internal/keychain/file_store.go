package keychain

import (
	"crypto/rand"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/crypto/chacha20poly1305"
)

// FileStore keeps the identity in a file, encrypted at rest with
// XChaCha20-Poly1305 under a per-device key stored next to it. The identifier
// is treated as an opaque secret; the encryption keeps it out of casual reach
// (backups, copied home directories), not out of reach of root.
type FileStore struct {
	path    string
	keyPath string
}

// NewFileStore creates a file-backed store at path. The parent directory is
// created on first save.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path:    path,
		keyPath: path + ".key",
	}
}

func (s *FileStore) Save(id string) {
	key, err := s.loadOrCreateKey()
	if err != nil {
		slog.Warn("keychain: failed to obtain device key", "error", err)
		return
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		slog.Warn("keychain: failed to initialize cipher", "error", err)
		return
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		slog.Warn("keychain: failed to generate nonce", "error", err)
		return
	}

	sealed := aead.Seal(nonce, nonce, []byte(id), nil)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		slog.Warn("keychain: failed to create directory", "error", err)
		return
	}

	// Write-then-rename so a crash never leaves a truncated slot
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		slog.Warn("keychain: failed to write identity", "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		slog.Warn("keychain: failed to replace identity file", "error", err)
	}
}

func (s *FileStore) Load() (string, bool) {
	sealed, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("keychain: failed to read identity", "error", err)
		}
		return "", false
	}

	key, err := os.ReadFile(s.keyPath)
	if err != nil {
		slog.Warn("keychain: failed to read device key", "error", err)
		return "", false
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		slog.Warn("keychain: failed to initialize cipher", "error", err)
		return "", false
	}

	if len(sealed) < aead.NonceSize() {
		slog.Warn("keychain: identity file too short")
		return "", false
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		slog.Warn("keychain: failed to decrypt identity", "error", err)
		return "", false
	}

	return string(plaintext), true
}

func (s *FileStore) Delete() {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("keychain: failed to delete identity", "error", err)
	}
}

// loadOrCreateKey reads the per-device key, generating one on first use.
func (s *FileStore) loadOrCreateKey() ([]byte, error) {
	key, err := os.ReadFile(s.keyPath)
	if err == nil && len(key) == chacha20poly1305.KeySize {
		return key, nil
	}
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	key = make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(s.keyPath), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(s.keyPath, key, 0o600); err != nil {
		return nil, err
	}

	return key, nil
}
