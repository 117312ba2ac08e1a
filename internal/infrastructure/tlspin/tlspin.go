// Package tlspin builds TLS configurations for endpoints identified either
// by a pinned certificate fingerprint or by the system trust anchor.
//
// A pinned endpoint is trusted when the SHA-1 fingerprint of its leaf
// certificate equals the pin; chain and host name are not checked, so a
// self-signed broker or update server works. Without a pin the usual
// verification against the system roots applies.
package tlspin

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // Fingerprint pinning, not a signature
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Size is the length of a fingerprint in bytes.
const Size = sha1.Size

// minVersion is the minimum TLS version for secure connections.
const minVersion = tls.VersionTLS12

var (
	// ErrPinMismatch is returned when the presented certificate does not match the pin.
	ErrPinMismatch = errors.New("tlspin: certificate fingerprint mismatch")

	// ErrBadPin is returned for a pin of the wrong length.
	ErrBadPin = errors.New("tlspin: pin must be 20 bytes")

	// ErrNoCertificate is returned when the peer presents no certificate.
	ErrNoCertificate = errors.New("tlspin: no certificate presented")
)

// Fingerprint returns the SHA-1 fingerprint of a DER certificate.
func Fingerprint(der []byte) []byte {
	sum := sha1.Sum(der) //nolint:gosec // Fingerprint pinning
	return sum[:]
}

// Format renders a fingerprint as colon-separated upper-case hex.
func Format(pin []byte) string {
	parts := make([]string, len(pin))
	for i, b := range pin {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// Parse reads a fingerprint written as hex, with or without colons.
func Parse(s string) ([]byte, error) {
	pin, err := hex.DecodeString(strings.ReplaceAll(strings.TrimSpace(s), ":", ""))
	if err != nil {
		return nil, fmt.Errorf("tlspin: parsing fingerprint: %w", err)
	}
	if len(pin) != Size {
		return nil, ErrBadPin
	}
	return pin, nil
}

// Config returns a client TLS configuration for serverName.
//
// With a nil pin the peer is verified against the system roots. With a
// 20-byte pin only the leaf fingerprint is checked.
func Config(serverName string, pin []byte) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion: minVersion,
		ServerName: serverName,
	}
	if pin == nil {
		return cfg, nil
	}
	if len(pin) != Size {
		return nil, ErrBadPin
	}
	want := bytes.Clone(pin)
	cfg.InsecureSkipVerify = true //nolint:gosec // Replaced by VerifyPeerCertificate below
	cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		return Verify(rawCerts, want)
	}
	return cfg, nil
}

// Verify checks the leaf of rawCerts against pin.
func Verify(rawCerts [][]byte, pin []byte) error {
	if len(rawCerts) == 0 {
		return ErrNoCertificate
	}
	got := Fingerprint(rawCerts[0])
	if !bytes.Equal(got, pin) {
		return fmt.Errorf("%w: got %s", ErrPinMismatch, Format(got))
	}
	return nil
}
