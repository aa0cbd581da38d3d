package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const ephemeralKeyBits = 2048

var ErrKeyNotFound = errors.New("key not found")

// KeyProvider supplies the RSA signing key and the public keys accepted for verification.
type KeyProvider interface {
	SigningKey() (kid string, key *rsa.PrivateKey, err error)
	VerificationKey(kid string) (*rsa.PublicKey, error)
	VerificationKeys() map[string]*rsa.PublicKey
}

// EphemeralKeyProvider holds a key pair generated at process start.
// Tokens it signs do not survive a restart and are not accepted by other instances.
type EphemeralKeyProvider struct {
	kid string
	key *rsa.PrivateKey
}

// NewEphemeralKeyProvider generates a fresh RSA key pair.
func NewEphemeralKeyProvider() (*EphemeralKeyProvider, error) {
	key, err := rsa.GenerateKey(rand.Reader, ephemeralKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	return NewStaticKeyProvider(key), nil
}

// NewStaticKeyProvider wraps an existing key, deriving the kid from its public modulus.
func NewStaticKeyProvider(key *rsa.PrivateKey) *EphemeralKeyProvider {
	return &EphemeralKeyProvider{kid: KeyID(&key.PublicKey), key: key}
}

func (p *EphemeralKeyProvider) SigningKey() (string, *rsa.PrivateKey, error) {
	return p.kid, p.key, nil
}

func (p *EphemeralKeyProvider) VerificationKey(kid string) (*rsa.PublicKey, error) {
	if kid != p.kid {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return &p.key.PublicKey, nil
}

func (p *EphemeralKeyProvider) VerificationKeys() map[string]*rsa.PublicKey {
	return map[string]*rsa.PublicKey{p.kid: &p.key.PublicKey}
}

// FileKeyProvider reads PEM encoded keys from a directory. The file name without extension is the kid.
// The first private key in directory order signs; every key found verifies, which allows rotation
// by dropping the retiring public key next to the new private key.
type FileKeyProvider struct {
	keys       map[string]*rsa.PublicKey
	signingKID string
	signingKey *rsa.PrivateKey
}

// NewFileKeyProvider loads every key in keyDir.
func NewFileKeyProvider(keyDir string) (*FileKeyProvider, error) {
	files, err := os.ReadDir(keyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read key directory: %w", err)
	}

	provider := &FileKeyProvider{keys: make(map[string]*rsa.PublicKey)}

	for _, file := range files {
		if file.IsDir() {
			continue
		}

		path := filepath.Join(keyDir, file.Name())
		keyData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", path, err)
		}
		block, _ := pem.Decode(keyData)
		if block == nil {
			return nil, fmt.Errorf("failed to decode PEM block from %s", path)
		}

		kid := strings.TrimSuffix(file.Name(), filepath.Ext(file.Name()))
		private, public, err := parseRSAKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key from file %s: %w", path, err)
		}
		if private != nil && provider.signingKey == nil {
			provider.signingKey = private
			provider.signingKID = kid
		}
		provider.keys[kid] = public
	}

	if provider.signingKey == nil {
		return nil, errors.New("no private key found for signing")
	}
	return provider, nil
}

func parseRSAKey(der []byte) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if key, err := x509.ParsePKCS1PrivateKey(der); err == nil {
		return key, &key.PublicKey, nil
	}
	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PrivateKey); ok {
			return rsaKey, &rsaKey.PublicKey, nil
		}
	}
	if key, err := x509.ParsePKCS1PublicKey(der); err == nil {
		return nil, key, nil
	}
	if key, err := x509.ParsePKIXPublicKey(der); err == nil {
		if rsaKey, ok := key.(*rsa.PublicKey); ok {
			return nil, rsaKey, nil
		}
	}
	return nil, nil, errors.New("not an RSA key")
}

func (p *FileKeyProvider) SigningKey() (string, *rsa.PrivateKey, error) {
	return p.signingKID, p.signingKey, nil
}

func (p *FileKeyProvider) VerificationKey(kid string) (*rsa.PublicKey, error) {
	key, ok := p.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}
	return key, nil
}

func (p *FileKeyProvider) VerificationKeys() map[string]*rsa.PublicKey {
	out := make(map[string]*rsa.PublicKey, len(p.keys))
	for kid, key := range p.keys {
		out[kid] = key
	}
	return out
}

// NewKeyProvider loads keys from keyDir when set and falls back to an ephemeral key otherwise.
func NewKeyProvider(keyDir string) (KeyProvider, error) {
	if strings.TrimSpace(keyDir) == "" {
		return NewEphemeralKeyProvider()
	}
	return NewFileKeyProvider(keyDir)
}

// KeyID derives a stable identifier from the public key modulus.
func KeyID(key *rsa.PublicKey) string {
	sum := sha256.Sum256(key.N.Bytes())
	return hex.EncodeToString(sum[:8])
}
