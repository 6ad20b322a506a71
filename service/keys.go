package service

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"fmt"
	"go-auth-service/config"
	"os"
	"strings"
	"sync"

	"github.com/golang-jwt/jwt/v5"
)

// Key is the signing material of a KeyProvider. It is either a SymmetricKey
// or an AsymmetricKey; no other implementations exist.
type Key interface {
	isKey()
}

// SymmetricKey is a shared secret used both to sign and to verify.
type SymmetricKey struct {
	Secret []byte
}

// AsymmetricKey pairs a private signing key with its public verification key.
type AsymmetricKey struct {
	Private crypto.PrivateKey
	Public  crypto.PublicKey
}

func (SymmetricKey) isKey()  {}
func (AsymmetricKey) isKey() {}

type keyFamily int

const (
	familyHMAC keyFamily = iota
	familyRSA
	familyECDSA
	familyEdDSA
)

func algorithmFamily(name string) (keyFamily, bool) {
	switch {
	case name == "HS256" || name == "HS384" || name == "HS512":
		return familyHMAC, true
	case name == "RS256" || name == "RS384" || name == "RS512",
		name == "PS256" || name == "PS384" || name == "PS512":
		return familyRSA, true
	case name == "ES256" || name == "ES384" || name == "ES512":
		return familyECDSA, true
	case name == "EdDSA":
		return familyEdDSA, true
	}
	return 0, false
}

// KeyProvider supplies the algorithm and key material used by TokenCodec.
// Keys can be rotated at runtime; the algorithm is fixed at construction.
type KeyProvider struct {
	mu        sync.RWMutex
	algorithm string
	family    keyFamily
	method    jwt.SigningMethod
	key       Key
}

// NewKeyProvider validates that key matches the family of algorithm.
func NewKeyProvider(algorithm string, key Key) (*KeyProvider, error) {
	family, ok := algorithmFamily(algorithm)
	if !ok {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	p := &KeyProvider{algorithm: algorithm, family: family, method: method}
	switch k := key.(type) {
	case SymmetricKey:
		if family != familyHMAC {
			return nil, fmt.Errorf("%w: %s requires an asymmetric key", ErrInvalidKeyFormat, algorithm)
		}
		if len(k.Secret) == 0 {
			return nil, fmt.Errorf("%w: empty secret", ErrInvalidKeyFormat)
		}
		p.key = SymmetricKey{Secret: append([]byte(nil), k.Secret...)}
	case AsymmetricKey:
		if family == familyHMAC {
			return nil, fmt.Errorf("%w: %s requires a symmetric key", ErrInvalidKeyFormat, algorithm)
		}
		if !p.matchesPrivate(k.Private) || !p.matchesPublic(k.Public) {
			return nil, fmt.Errorf("%w: key pair does not fit %s", ErrInvalidKeyFormat, algorithm)
		}
		p.key = k
	default:
		return nil, fmt.Errorf("%w: no key material", ErrInvalidKeyFormat)
	}
	return p, nil
}

// LoadKeyProvider builds a provider from the token section of the config.
// Asymmetric keys are read from PEM files.
func LoadKeyProvider(cfg config.TokenConfig) (*KeyProvider, error) {
	switch strings.ToLower(cfg.AlgorithmType) {
	case config.AlgorithmTypeSymmetric:
		return NewKeyProvider(cfg.AlgorithmName, SymmetricKey{Secret: []byte(cfg.SecretKey)})
	case config.AlgorithmTypeAsymmetric:
		privPEM, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		pubPEM, err := os.ReadFile(cfg.PublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		key, err := parsePEMKeyPair(cfg.AlgorithmName, privPEM, pubPEM)
		if err != nil {
			return nil, err
		}
		return NewKeyProvider(cfg.AlgorithmName, key)
	default:
		return nil, fmt.Errorf("unknown algorithm type %q", cfg.AlgorithmType)
	}
}

func parsePEMKeyPair(algorithm string, privPEM, pubPEM []byte) (AsymmetricKey, error) {
	family, ok := algorithmFamily(algorithm)
	if !ok {
		return AsymmetricKey{}, fmt.Errorf("unsupported signing algorithm %q", algorithm)
	}

	var (
		key AsymmetricKey
		err error
	)
	switch family {
	case familyRSA:
		if key.Private, err = jwt.ParseRSAPrivateKeyFromPEM(privPEM); err == nil {
			key.Public, err = jwt.ParseRSAPublicKeyFromPEM(pubPEM)
		}
	case familyECDSA:
		if key.Private, err = jwt.ParseECPrivateKeyFromPEM(privPEM); err == nil {
			key.Public, err = jwt.ParseECPublicKeyFromPEM(pubPEM)
		}
	case familyEdDSA:
		if key.Private, err = jwt.ParseEdPrivateKeyFromPEM(privPEM); err == nil {
			key.Public, err = jwt.ParseEdPublicKeyFromPEM(pubPEM)
		}
	default:
		return AsymmetricKey{}, fmt.Errorf("%w: %s is not an asymmetric algorithm", ErrInvalidKeyFormat, algorithm)
	}
	if err != nil {
		return AsymmetricKey{}, fmt.Errorf("%w: %v", ErrInvalidKeyFormat, err)
	}
	return key, nil
}

func (p *KeyProvider) matchesPrivate(k crypto.PrivateKey) bool {
	switch p.family {
	case familyRSA:
		_, ok := k.(*rsa.PrivateKey)
		return ok
	case familyECDSA:
		_, ok := k.(*ecdsa.PrivateKey)
		return ok
	case familyEdDSA:
		_, ok := k.(ed25519.PrivateKey)
		return ok
	}
	return false
}

func (p *KeyProvider) matchesPublic(k crypto.PublicKey) bool {
	switch p.family {
	case familyRSA:
		_, ok := k.(*rsa.PublicKey)
		return ok
	case familyECDSA:
		_, ok := k.(*ecdsa.PublicKey)
		return ok
	case familyEdDSA:
		_, ok := k.(ed25519.PublicKey)
		return ok
	}
	return false
}

func secretBytes(k any) ([]byte, bool) {
	switch s := k.(type) {
	case string:
		return []byte(s), s != ""
	case []byte:
		return append([]byte(nil), s...), len(s) > 0
	}
	return nil, false
}

// AlgorithmName returns the configured JWT "alg" value.
func (p *KeyProvider) AlgorithmName() string { return p.algorithm }

// Method returns the jwt signing method for AlgorithmName.
func (p *KeyProvider) Method() jwt.SigningMethod { return p.method }

// Key returns the current key material.
func (p *KeyProvider) Key() Key {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.key
}

// SigningKey returns the value passed to jwt when signing.
func (p *KeyProvider) SigningKey() any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch k := p.key.(type) {
	case SymmetricKey:
		return k.Secret
	case AsymmetricKey:
		return k.Private
	}
	return nil
}

// VerificationKey returns the value passed to jwt when verifying.
func (p *KeyProvider) VerificationKey() any {
	p.mu.RLock()
	defer p.mu.RUnlock()
	switch k := p.key.(type) {
	case SymmetricKey:
		return k.Secret
	case AsymmetricKey:
		return k.Public
	}
	return nil
}

// SetSigningKey rotates the signing key. In symmetric mode this replaces the
// shared secret, so verification changes too.
func (p *KeyProvider) SetSigningKey(k any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch cur := p.key.(type) {
	case SymmetricKey:
		secret, ok := secretBytes(k)
		if !ok {
			return fmt.Errorf("%w: expected a non-empty secret, got %T", ErrInvalidKeyFormat, k)
		}
		p.key = SymmetricKey{Secret: secret}
	case AsymmetricKey:
		if !p.matchesPrivate(k) {
			return fmt.Errorf("%w: %T cannot sign %s", ErrInvalidKeyFormat, k, p.algorithm)
		}
		cur.Private = k
		p.key = cur
	}
	return nil
}

// SetVerificationKey rotates the verification key.
func (p *KeyProvider) SetVerificationKey(k any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch cur := p.key.(type) {
	case SymmetricKey:
		secret, ok := secretBytes(k)
		if !ok {
			return fmt.Errorf("%w: expected a non-empty secret, got %T", ErrInvalidKeyFormat, k)
		}
		p.key = SymmetricKey{Secret: secret}
	case AsymmetricKey:
		if !p.matchesPublic(k) {
			return fmt.Errorf("%w: %T cannot verify %s", ErrInvalidKeyFormat, k, p.algorithm)
		}
		cur.Public = k
		p.key = cur
	}
	return nil
}
