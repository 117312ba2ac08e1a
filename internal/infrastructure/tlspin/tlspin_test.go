package tlspin

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func selfSigned(t *testing.T) []byte {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "broker.lan"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	return der
}

func TestConfigUnpinnedUsesSystemRoots(t *testing.T) {
	cfg, err := Config("broker.lan", nil)
	require.NoError(t, err)

	assert.False(t, cfg.InsecureSkipVerify)
	assert.Nil(t, cfg.VerifyPeerCertificate)
	assert.Equal(t, "broker.lan", cfg.ServerName)
}

func TestConfigPinned(t *testing.T) {
	der := selfSigned(t)
	pin := Fingerprint(der)

	cfg, err := Config("broker.lan", pin)
	require.NoError(t, err)
	require.NotNil(t, cfg.VerifyPeerCertificate)

	assert.NoError(t, cfg.VerifyPeerCertificate([][]byte{der}, nil))

	other := selfSigned(t)
	assert.ErrorIs(t, cfg.VerifyPeerCertificate([][]byte{other}, nil), ErrPinMismatch)
	assert.ErrorIs(t, cfg.VerifyPeerCertificate(nil, nil), ErrNoCertificate)
}

func TestConfigPinIsCopied(t *testing.T) {
	der := selfSigned(t)
	pin := Fingerprint(der)

	cfg, err := Config("", pin)
	require.NoError(t, err)
	pin[0] ^= 0xFF

	assert.NoError(t, cfg.VerifyPeerCertificate([][]byte{der}, nil))
}

func TestConfigBadPin(t *testing.T) {
	_, err := Config("broker.lan", []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrBadPin)
}

func TestFormatAndParse(t *testing.T) {
	pin := Fingerprint([]byte("certificate"))
	text := Format(pin)

	assert.Len(t, text, Size*3-1)
	parsed, err := Parse(text)
	require.NoError(t, err)
	assert.Equal(t, pin, parsed)

	_, err = Parse("AB:CD")
	assert.ErrorIs(t, err, ErrBadPin)
	_, err = Parse("zz")
	assert.Error(t, err)
}
