package tlsutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/telemetrystream/pkg/security"
)

// writeTestCert writes a self-signed localhost certificate and key to dir.
func writeTestCert(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "localhost"},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644))
	require.NoError(t, os.WriteFile(keyFile,
		pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600))
	return certFile, keyFile
}

func TestLoadServerTLSConfig(t *testing.T) {
	certFile, keyFile := writeTestCert(t, t.TempDir())

	cfg, err := LoadServerTLSConfig(security.ServerTLS{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, cfg)

	cfg, err = LoadServerTLSConfig(security.ServerTLS{Enabled: true, CertFile: certFile, KeyFile: keyFile, MinVersion: "1.3"})
	require.NoError(t, err)
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)

	_, err = LoadServerTLSConfig(security.ServerTLS{Enabled: true, CertFile: "missing.pem", KeyFile: keyFile})
	assert.Error(t, err)
}

func TestLoadClientTLSConfig(t *testing.T) {
	dir := t.TempDir()
	certFile, _ := writeTestCert(t, dir)

	cfg, err := LoadClientTLSConfig(security.ClientTLS{})
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.False(t, cfg.InsecureSkipVerify)

	cfg, err = LoadClientTLSConfig(security.ClientTLS{CAFiles: []string{certFile}, InsecureSkipVerify: true})
	require.NoError(t, err)
	assert.True(t, cfg.InsecureSkipVerify)

	_, err = LoadClientTLSConfig(security.ClientTLS{CAFiles: []string{filepath.Join(dir, "missing.pem")}})
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0o644))
	_, err = LoadClientTLSConfig(security.ClientTLS{CAFiles: []string{bad}})
	assert.Error(t, err)
}

func TestHandshake_AdditionalCA(t *testing.T) {
	certFile, keyFile := writeTestCert(t, t.TempDir())

	serverCfg, err := LoadServerTLSConfig(security.ServerTLS{Enabled: true, CertFile: certFile, KeyFile: keyFile})
	require.NoError(t, err)

	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	srv.TLS = serverCfg
	srv.StartTLS()
	defer srv.Close()

	clientCfg, err := LoadClientTLSConfig(security.ClientTLS{CAFiles: []string{certFile}})
	require.NoError(t, err)
	clientCfg.ServerName = "localhost"

	client := &http.Client{Transport: &http.Transport{TLSClientConfig: clientCfg}, Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestParseTLSVersion(t *testing.T) {
	assert.Equal(t, uint16(tls.VersionTLS13), parseTLSVersion("1.3"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion("1.2"))
	assert.Equal(t, uint16(tls.VersionTLS12), parseTLSVersion(""))
}
