// Package keyring provides secure credential storage.
// It uses the system keyring when available, falling back to
// encrypted local file storage when not.
package keyring

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/hkdf"

	"github.com/yllada/vpn-registry/common"
)

const (
	// serviceName is the identifier used in the system keyring.
	serviceName = "vpn-registry"
	// hkdfInfo binds derived keys to this use.
	hkdfInfo = "vpn-registry credential file v1"
)

// PostgresPasswordKey is the entry holding the shared database password.
const PostgresPasswordKey = "remote/postgres/password"

// Option configures a Store.
type Option func(*Store)

// WithFile sets the fallback file location.
func WithFile(path string) Option {
	return func(s *Store) { s.file = path }
}

// FileOnly skips the system keyring.
func FileOnly() Option {
	return func(s *Store) { s.useFile = true }
}

// Store implements common.CredentialStore on the system keyring, or on an
// encrypted file when no keyring service is reachable.
type Store struct {
	useFile bool
	file    string
	key     []byte
	logger  *slog.Logger

	mu      sync.RWMutex
	entries map[string]string
	loaded  bool
}

var _ common.CredentialStore = (*Store)(nil)

// New probes the system keyring and prepares the fallback.
func New(opts ...Option) *Store {
	s := &Store{logger: common.Component("keyring")}
	for _, opt := range opts {
		opt(s)
	}
	if s.file == "" {
		if dir, err := common.GetConfigDir(); err == nil {
			s.file = filepath.Join(dir, common.CredentialsFileName)
		} else {
			s.file = common.CredentialsFileName
		}
	}

	if !s.useFile {
		probe := serviceName + "-probe"
		if err := keyring.Set(serviceName, probe, "probe"); err != nil {
			s.logger.Info("system keyring unavailable, using encrypted file", "error", err)
			s.useFile = true
		} else {
			_ = keyring.Delete(serviceName, probe)
		}
	}
	return s
}

// UsesFile reports whether secrets go to the encrypted file.
func (s *Store) UsesFile() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.useFile
}

// Store saves a secret under key.
func (s *Store) Store(key, secret string) error {
	if key == "" {
		return errors.New("credential key cannot be empty")
	}
	if secret == "" {
		return errors.New("secret cannot be empty")
	}

	if !s.UsesFile() {
		err := keyring.Set(serviceName, key, secret)
		if err == nil {
			return nil
		}
		s.logger.Warn("system keyring write failed, switching to encrypted file", "error", err)
		s.mu.Lock()
		s.useFile = true
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	s.entries[key] = secret
	return s.saveLocked()
}

// Get retrieves the secret stored under key.
func (s *Store) Get(key string) (string, error) {
	if key == "" {
		return "", errors.New("credential key cannot be empty")
	}

	if !s.UsesFile() {
		secret, err := keyring.Get(serviceName, key)
		if err == nil {
			return secret, nil
		}
		if !errors.Is(err, keyring.ErrNotFound) {
			s.logger.Warn("system keyring read failed", "error", err)
		}
	}

	// Entries written before a fallback switch stay readable.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return "", err
	}
	secret, ok := s.entries[key]
	if !ok {
		return "", common.ErrCredentialsNotFound
	}
	return secret, nil
}

// Delete removes the secret stored under key from both backends.
func (s *Store) Delete(key string) error {
	if key == "" {
		return errors.New("credential key cannot be empty")
	}
	if !s.UsesFile() {
		if err := keyring.Delete(serviceName, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			s.logger.Warn("system keyring delete failed", "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	if _, ok := s.entries[key]; !ok {
		return nil
	}
	delete(s.entries, key)
	return s.saveLocked()
}

// Exists reports whether a secret is stored under key.
func (s *Store) Exists(key string) bool {
	_, err := s.Get(key)
	return err == nil
}

func (s *Store) loadLocked() error {
	if s.loaded {
		return nil
	}
	s.entries = make(map[string]string)
	if s.key == nil {
		key, err := deriveKey()
		if err != nil {
			return fmt.Errorf("%w: %v", common.ErrEncryption, err)
		}
		s.key = key
	}

	data, err := os.ReadFile(s.file)
	if errors.Is(err, os.ErrNotExist) {
		s.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrCredentialStorage, err)
	}
	plain, err := decrypt(s.key, data)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	if err := json.Unmarshal(plain, &s.entries); err != nil {
		return fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	s.loaded = true
	return nil
}

func (s *Store) saveLocked() error {
	data, err := json.Marshal(s.entries)
	if err != nil {
		return err
	}
	encrypted, err := encrypt(s.key, data)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrEncryption, err)
	}
	if err := common.EnsureDir(filepath.Dir(s.file)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrCredentialStorage, err)
	}
	if err := os.WriteFile(s.file, encrypted, 0600); err != nil {
		return fmt.Errorf("%w: %v", common.ErrCredentialStorage, err)
	}
	return nil
}

// deriveKey derives the file key from machine specific data with HKDF.
func deriveKey() ([]byte, error) {
	hostname, _ := os.Hostname()
	secret := getMachineID() + ":" + strconv.Itoa(os.Getuid())

	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), []byte(hostname), []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, err
	}
	return key, nil
}

func getMachineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if data, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(data))
		}
	}
	return "default-machine-id"
}

func encrypt(key, plaintext []byte) ([]byte, error) {
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

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return []byte(base64.StdEncoding.EncodeToString(ciphertext)), nil
}

func decrypt(key, data []byte) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, err
	}

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

	nonce, ciphertext := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ciphertext, nil)
}
