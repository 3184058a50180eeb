// Package keys holds the signing-key registry used for JWTs issued by the service.
package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"go.pilab.hu/fence/config"
)

// DefaultKeySize is the RSA modulus size for generated keys.
const DefaultKeySize = 2048

var (
	ErrUnknownKeyID = errors.New("unknown key id")
	ErrNoKeys       = errors.New("key registry is empty")
)

// KeyPair is one signing key and its id.
type KeyPair struct {
	KeyID      string
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey
}

// Registry is an ordered, read-only set of key pairs. The last entry signs; every
// entry verifies. Rotation appends a new entry to the configuration and later drops
// the oldest one, it never edits the registry in place.
type Registry struct {
	pairs []KeyPair
	byID  map[string]int
}

// NewRegistry builds a registry from pairs, keeping their order.
func NewRegistry(pairs ...KeyPair) (*Registry, error) {
	if len(pairs) == 0 {
		return nil, ErrNoKeys
	}

	r := &Registry{
		pairs: make([]KeyPair, 0, len(pairs)),
		byID:  make(map[string]int, len(pairs)),
	}
	for _, p := range pairs {
		if p.KeyID == "" || p.PrivateKey == nil {
			return nil, fmt.Errorf("key pair %q is incomplete", p.KeyID)
		}
		if _, dup := r.byID[p.KeyID]; dup {
			return nil, fmt.Errorf("duplicate key id %q", p.KeyID)
		}
		if p.PublicKey == nil {
			p.PublicKey = &p.PrivateKey.PublicKey
		}
		if !p.PrivateKey.PublicKey.Equal(p.PublicKey) {
			return nil, fmt.Errorf("key pair %q: public key does not match private key", p.KeyID)
		}
		r.byID[p.KeyID] = len(r.pairs)
		r.pairs = append(r.pairs, p)
	}

	return r, nil
}

// LoadRegistry reads every configured key pair from PEM files.
func LoadRegistry(files []config.KeyPairFiles) (*Registry, error) {
	pairs := make([]KeyPair, 0, len(files))
	for _, f := range files {
		priv, err := readPrivateKey(f.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", f.KeyID, err)
		}
		pub, err := readPublicKey(f.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", f.KeyID, err)
		}
		pairs = append(pairs, KeyPair{KeyID: f.KeyID, PublicKey: pub, PrivateKey: priv})
	}
	return NewRegistry(pairs...)
}

// Current returns the signing key.
func (r *Registry) Current() KeyPair {
	return r.pairs[len(r.pairs)-1]
}

// Key returns the key pair registered under kid.
func (r *Registry) Key(kid string) (KeyPair, error) {
	i, ok := r.byID[kid]
	if !ok {
		return KeyPair{}, fmt.Errorf("%w: %q", ErrUnknownKeyID, kid)
	}
	return r.pairs[i], nil
}

// KeyIDs returns the key ids in configuration order.
func (r *Registry) KeyIDs() []string {
	ids := make([]string, len(r.pairs))
	for i, p := range r.pairs {
		ids[i] = p.KeyID
	}
	return ids
}

// JSONWebKey is the public half of a key pair in JWK form.
type JSONWebKey struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// JSONWebKeySet is the document served on the JWKS endpoint.
type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// JWKS returns all public keys, in configuration order.
func (r *Registry) JWKS() JSONWebKeySet {
	set := JSONWebKeySet{Keys: make([]JSONWebKey, 0, len(r.pairs))}
	for _, p := range r.pairs {
		set.Keys = append(set.Keys, JSONWebKey{
			Kid: p.KeyID,
			Kty: "RSA",
			Alg: "RS256",
			Use: "sig",
			N:   base64.RawURLEncoding.EncodeToString(p.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(p.PublicKey.E)).Bytes()),
		})
	}
	return set
}

// GenerateRSAKey generates a new RSA private key.
func GenerateRSAKey(bits int) (*rsa.PrivateKey, error) {
	if bits == 0 {
		bits = DefaultKeySize
	}
	return rsa.GenerateKey(rand.Reader, bits)
}

// WriteKeyPair writes key as a PKCS#8 private key PEM and a PKIX public key PEM.
// The private key file is created with 0600 permissions.
func WriteKeyPair(key *rsa.PrivateKey, files config.KeyPairFiles) error {
	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshal private key: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return fmt.Errorf("marshal public key: %w", err)
	}

	if err := writePEM(files.PrivateKeyFile, "PRIVATE KEY", privDER, 0o600); err != nil {
		return err
	}
	return writePEM(files.PublicKeyFile, "PUBLIC KEY", pubDER, 0o644)
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM block found", path)
	}
	return block, nil
}

func readPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%s: not an RSA private key", path)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%s: unsupported PEM type %q", path, block.Type)
	}
}

func readPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}

	switch block.Type {
	case "RSA PUBLIC KEY":
		return x509.ParsePKCS1PublicKey(block.Bytes)
	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("%s: not an RSA public key", path)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%s: unsupported PEM type %q", path, block.Type)
	}
}
