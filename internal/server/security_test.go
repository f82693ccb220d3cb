package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeKeyPair writes a self-signed localhost certificate and its key into dir.
func writeKeyPair(t *testing.T, dir string) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: "rollcall.local"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1)},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	certFile := filepath.Join(dir, "display.crt")
	keyFile := filepath.Join(dir, "display.key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func TestNewSecurityLayer(t *testing.T) {
	t.Parallel()

	assert.IsType(t, &TLSListener{}, NewSecurityLayer(true, "a.crt", "a.key"))
	assert.IsType(t, &PlainListener{}, NewSecurityLayer(false, "a.crt", "a.key"))
}

func TestTLSListener_Listen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	certFile, keyFile := writeKeyPair(t, dir)
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a pem block"), 0o600))

	tests := []struct {
		name     string
		cert     string
		key      string
		addr     string
		errorMsg string
	}{
		{
			name: "valid key pair",
			cert: certFile,
			key:  keyFile,
			addr: "127.0.0.1:0",
		},
		{
			name:     "missing certificate",
			cert:     filepath.Join(dir, "absent.crt"),
			key:      keyFile,
			addr:     "127.0.0.1:0",
			errorMsg: "failed to load TLS certificate",
		},
		{
			name:     "malformed key",
			cert:     certFile,
			key:      garbage,
			addr:     "127.0.0.1:0",
			errorMsg: "failed to load TLS certificate",
		},
		{
			name:     "bad address",
			cert:     certFile,
			key:      keyFile,
			addr:     "127.0.0.1:-1",
			errorMsg: "failed to listen",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ln, err := NewTLSListener(tt.cert, tt.key).Listen("tcp", tt.addr)
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				assert.Nil(t, ln)
				return
			}
			require.NoError(t, err)
			defer ln.Close()
			assert.NotEmpty(t, ln.Addr().String())
		})
	}
}

func TestPlainListener_Listen(t *testing.T) {
	t.Parallel()

	ln, err := NewPlainListener().Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Close()
		}
		accepted <- err
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	conn.Close()
	require.NoError(t, <-accepted)

	_, err = NewPlainListener().Listen("tcp", "127.0.0.1:-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to listen")
}
