// Package vault wraps user-level secrets with authenticated encryption.
// The 32-byte master secret lives in the host credential store under an
// account derived from the database path, so two installations never share
// key material.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"

	"cognical/internal/apperr"
)

const (
	serviceName   = "cognical.ai.vault"
	accountDomain = "cognical.vault.v1"
	versionPrefix = "v1:"

	saltLen    = 16
	nonceLen   = 12
	keyLen     = 32
	masterLen  = 32
	iterations = 120_000
)

type Vault struct {
	service string
	account string

	mu     sync.Mutex
	master []byte

	// keyring seams, replaceable in tests
	getSecret    func(service, account string) (string, error)
	setSecret    func(service, account, secret string) error
	deleteSecret func(service, account string) error
}

// New builds a vault bound to the given database path.
func New(dbPath string) *Vault {
	return &Vault{
		service:      serviceName,
		account:      accountFor(dbPath),
		getSecret:    keyring.Get,
		setSecret:    keyring.Set,
		deleteSecret: keyring.Delete,
	}
}

func accountFor(dbPath string) string {
	sum := sha256.Sum256([]byte(accountDomain + dbPath))
	return "cognical-" + hex.EncodeToString(sum[:8])
}

// Account exposes the derived credential-store account identifier.
func (v *Vault) Account() string { return v.account }

func (v *Vault) loadMaster() ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.master != nil {
		return v.master, nil
	}
	stored, err := v.getSecret(v.service, v.account)
	switch {
	case err == nil:
		master, decodeErr := base64.StdEncoding.DecodeString(stored)
		if decodeErr != nil || len(master) != masterLen {
			return nil, apperr.Crypto("stored master secret is corrupt")
		}
		v.master = master
	case errors.Is(err, keyring.ErrNotFound):
		master := make([]byte, masterLen)
		if _, err := rand.Read(master); err != nil {
			return nil, apperr.Crypto("generate master secret: " + err.Error())
		}
		if err := v.setSecret(v.service, v.account, base64.StdEncoding.EncodeToString(master)); err != nil {
			return nil, apperr.Crypto("store master secret: " + err.Error())
		}
		v.master = master
	default:
		return nil, apperr.Crypto("credential store unavailable: " + err.Error())
	}
	return v.master, nil
}

// Encrypt wraps plaintext with a fresh salt and nonce. Identical plaintexts
// yield distinct ciphertexts.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	master, err := v.loadMaster()
	if err != nil {
		return "", err
	}
	return encryptWithMaster(master, plaintext)
}

// Decrypt reverses Encrypt. Tag mismatch is a Crypto error, an unknown
// prefix a Format error.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	master, err := v.loadMaster()
	if err != nil {
		return "", err
	}
	return decryptWithMaster(master, ciphertext)
}

// ClearMasterSecret removes the stored secret and drops the cached copy.
// Absence of a stored secret is not an error.
func (v *Vault) ClearMasterSecret() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.master = nil
	err := v.deleteSecret(v.service, v.account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return apperr.Crypto("clear master secret: " + err.Error())
	}
	return nil
}

func deriveKey(master, salt []byte) []byte {
	return pbkdf2.Key(master, salt, iterations, keyLen, sha256.New)
}

func encryptWithMaster(master []byte, plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", apperr.Crypto("generate salt: " + err.Error())
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", apperr.Crypto("generate nonce: " + err.Error())
	}
	block, err := aes.NewCipher(deriveKey(master, salt))
	if err != nil {
		return "", apperr.Crypto("init cipher: " + err.Error())
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperr.Crypto("init gcm: " + err.Error())
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	packed := make([]byte, 0, saltLen+nonceLen+len(sealed))
	packed = append(packed, salt...)
	packed = append(packed, nonce...)
	packed = append(packed, sealed...)
	return versionPrefix + base64.StdEncoding.EncodeToString(packed), nil
}

func decryptWithMaster(master []byte, ciphertext string) (string, error) {
	if len(ciphertext) < len(versionPrefix) || ciphertext[:len(versionPrefix)] != versionPrefix {
		return "", apperr.Format("unrecognized ciphertext prefix")
	}
	packed, err := base64.StdEncoding.DecodeString(ciphertext[len(versionPrefix):])
	if err != nil {
		return "", apperr.Format("ciphertext is not valid base64")
	}
	if len(packed) < saltLen+nonceLen+16 {
		return "", apperr.Format("ciphertext too short")
	}
	salt := packed[:saltLen]
	nonce := packed[saltLen : saltLen+nonceLen]
	sealed := packed[saltLen+nonceLen:]
	block, err := aes.NewCipher(deriveKey(master, salt))
	if err != nil {
		return "", apperr.Crypto("init cipher: " + err.Error())
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", apperr.Crypto("init gcm: " + err.Error())
	}
	plain, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", apperr.Crypto("decryption failed")
	}
	return string(plain), nil
}
