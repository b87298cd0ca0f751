package db

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"

	"gorm.io/gorm"
)

// APIKeyPrefix marks keys for the /v1 API. The same prefix doubles as
// the internal trust-tier marker on the ingestion endpoint.
const APIKeyPrefix = "ak_live_"

// ErrInvalidAPIKey is returned for every authentication failure: unknown,
// inactive and expired keys are deliberately indistinguishable so callers
// cannot enumerate key state.
var ErrInvalidAPIKey = errors.New("invalid API key")

// HashAPIKey returns the SHA-256 hex digest of a raw key. Only hashes
// are ever compared or stored.
func HashAPIKey(rawKey string) string {
	h := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(h[:])
}

// GenerateAPIKey produces a new plaintext key. The caller is responsible
// for showing it to the owner exactly once and persisting only the hash
// (plus the encrypted redisplay copy).
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return APIKeyPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}

// CreateAPIKey stores a new key for the given owner and returns the
// record. encryptionKey may be empty, in which case no redisplay copy
// is retained.
func CreateAPIKey(db *gorm.DB, salesID uint, name string, scopes []string, rawKey, encryptionKey string) (*APIKey, error) {
	prefix := rawKey
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}

	encrypted := ""
	if encryptionKey != "" {
		var err error
		encrypted, err = EncryptKey(rawKey, encryptionKey)
		if err != nil {
			return nil, err
		}
	}

	key := &APIKey{
		SalesID:      salesID,
		Name:         name,
		KeyPrefix:    prefix,
		KeyHash:      HashAPIKey(rawKey),
		KeyEncrypted: encrypted,
		Scopes:       scopes,
		IsActive:     true,
	}
	if err := db.Create(key).Error; err != nil {
		return nil, err
	}
	return key, nil
}

// LookupAPIKey resolves a raw key to its record via hash comparison and
// enforces active/expiry state. Any failure yields ErrInvalidAPIKey.
func LookupAPIKey(db *gorm.DB, rawKey string) (*APIKey, error) {
	var key APIKey
	err := db.Where("key_hash = ?", HashAPIKey(rawKey)).First(&key).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidAPIKey
		}
		return nil, err
	}

	if !key.IsActive {
		return nil, ErrInvalidAPIKey
	}
	if key.ExpiresAt != nil && key.ExpiresAt.Before(time.Now()) {
		return nil, ErrInvalidAPIKey
	}

	return &key, nil
}

// TouchAPIKey updates the key's last-used timestamp. Best-effort.
func TouchAPIKey(db *gorm.DB, id uint) {
	now := time.Now()
	db.Model(&APIKey{}).Where("id = ?", id).Update("last_used_at", &now)
}

// HasScope reports whether the key grants the required scope. Exact
// membership only, no hierarchy or wildcard expansion.
func (k *APIKey) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// EncryptKey AES-GCM-encrypts a plaintext key with the hex-encoded
// 32-byte encryption key and returns nonce||ciphertext in base64.
func EncryptKey(plaintext, encryptionKeyHex string) (string, error) {
	keyBytes, err := hex.DecodeString(encryptionKeyHex)
	if err != nil {
		return "", errors.New("encryption key must be hex-encoded")
	}
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptKey reverses EncryptKey. It exists for the narrow owner-only
// redisplay path and nothing else.
func DecryptKey(encoded, encryptionKeyHex string) (string, error) {
	keyBytes, err := hex.DecodeString(encryptionKeyHex)
	if err != nil {
		return "", errors.New("encryption key must be hex-encoded")
	}
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(sealed) < gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
