package keys

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.pilab.hu/fence/config"
)

func writeTestPair(t *testing.T, dir, kid string) config.KeyPairFiles {
	t.Helper()
	key, err := GenerateRSAKey(1024)
	require.NoError(t, err)

	files := config.KeyPairFiles{
		KeyID:          kid,
		PublicKeyFile:  filepath.Join(dir, kid, "jwt_public_key.pem"),
		PrivateKeyFile: filepath.Join(dir, kid, "jwt_private_key.pem"),
	}
	require.NoError(t, WriteKeyPair(key, files))
	return files
}

func TestLoadRegistry_Order(t *testing.T) {
	dir := t.TempDir()
	files := []config.KeyPairFiles{
		writeTestPair(t, dir, "key-01"),
		writeTestPair(t, dir, "key-02"),
	}

	reg, err := LoadRegistry(files)
	require.NoError(t, err)

	assert.Equal(t, []string{"key-01", "key-02"}, reg.KeyIDs())
	assert.Equal(t, "key-02", reg.Current().KeyID)

	old, err := reg.Key("key-01")
	require.NoError(t, err)
	assert.NotNil(t, old.PrivateKey)

	_, err = reg.Key("key-03")
	assert.ErrorIs(t, err, ErrUnknownKeyID)

	jwks := reg.JWKS()
	require.Len(t, jwks.Keys, 2)
	assert.Equal(t, "key-01", jwks.Keys[0].Kid)
	assert.Equal(t, "RS256", jwks.Keys[1].Alg)
	assert.Equal(t, "AQAB", jwks.Keys[1].E)
}

func TestLoadRegistry_PKCS1(t *testing.T) {
	dir := t.TempDir()
	key, err := GenerateRSAKey(1024)
	require.NoError(t, err)

	priv := filepath.Join(dir, "priv.pem")
	pub := filepath.Join(dir, "pub.pem")
	require.NoError(t, os.WriteFile(priv, pem.EncodeToMemory(&pem.Block{
		Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), 0o600))
	require.NoError(t, os.WriteFile(pub, pem.EncodeToMemory(&pem.Block{
		Type: "RSA PUBLIC KEY", Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	}), 0o600))

	reg, err := LoadRegistry([]config.KeyPairFiles{{KeyID: "legacy", PublicKeyFile: pub, PrivateKeyFile: priv}})
	require.NoError(t, err)
	assert.True(t, key.Equal(reg.Current().PrivateKey))
}

func TestLoadRegistry_Errors(t *testing.T) {
	dir := t.TempDir()
	a := writeTestPair(t, dir, "a")
	b := writeTestPair(t, dir, "b")

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRegistry([]config.KeyPairFiles{{
			KeyID: "x", PublicKeyFile: a.PublicKeyFile, PrivateKeyFile: filepath.Join(dir, "missing.pem"),
		}})
		assert.Error(t, err)
	})

	t.Run("mismatched halves", func(t *testing.T) {
		_, err := LoadRegistry([]config.KeyPairFiles{{
			KeyID: "x", PublicKeyFile: b.PublicKeyFile, PrivateKeyFile: a.PrivateKeyFile,
		}})
		assert.ErrorContains(t, err, "does not match")
	})

	t.Run("not pem", func(t *testing.T) {
		garbage := filepath.Join(dir, "garbage.pem")
		require.NoError(t, os.WriteFile(garbage, []byte("not a key"), 0o600))
		_, err := LoadRegistry([]config.KeyPairFiles{{
			KeyID: "x", PublicKeyFile: a.PublicKeyFile, PrivateKeyFile: garbage,
		}})
		assert.ErrorContains(t, err, "no PEM block")
	})

	t.Run("empty", func(t *testing.T) {
		_, err := LoadRegistry(nil)
		assert.ErrorIs(t, err, ErrNoKeys)
	})
}

func TestNewRegistry_DuplicateKeyID(t *testing.T) {
	key, err := GenerateRSAKey(1024)
	require.NoError(t, err)

	_, err = NewRegistry(
		KeyPair{KeyID: "k", PrivateKey: key},
		KeyPair{KeyID: "k", PrivateKey: key},
	)
	assert.ErrorContains(t, err, "duplicate")
}
