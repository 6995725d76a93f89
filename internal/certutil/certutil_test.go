package certutil_test

import (
	"path/filepath"
	"testing"

	"datanode/internal/certutil"
	"datanode/internal/certutil/certutiltest"
)

func TestLoadAndCurrent(t *testing.T) {
	ca, err := certutiltest.GenerateCA()
	if err != nil {
		t.Fatalf("GenerateCA: %v", err)
	}
	node, err := certutiltest.GenerateNodeCert(ca)
	if err != nil {
		t.Fatalf("GenerateNodeCert: %v", err)
	}

	m := certutil.New()
	if m.Current() != nil {
		t.Fatal("expected nil Current before Load")
	}

	if err := m.Load(node.CertPEM, node.KeyPEM, ca.CertPEM); err != nil {
		t.Fatalf("Load: %v", err)
	}

	st := m.Current()
	if st == nil {
		t.Fatal("expected non-nil state after Load")
	}
	if st.CACert == nil || st.CAPool == nil {
		t.Error("expected CACert and CAPool to be populated")
	}
}

func TestServerAndClientTLSConfig(t *testing.T) {
	ca, _ := certutiltest.GenerateCA()
	node, _ := certutiltest.GenerateNodeCert(ca)

	m := certutil.New()
	if err := m.Load(node.CertPEM, node.KeyPEM, ca.CertPEM); err != nil {
		t.Fatalf("Load: %v", err)
	}

	serverCfg := m.ServerTLSConfig()
	if serverCfg.GetCertificate == nil {
		t.Error("expected GetCertificate callback")
	}

	clientCfg := m.ClientTLSConfig("localhost")
	if len(clientCfg.Certificates) != 1 {
		t.Errorf("expected 1 certificate, got %d", len(clientCfg.Certificates))
	}
	if clientCfg.RootCAs == nil {
		t.Error("expected non-nil RootCAs")
	}
}

func TestClientTLSConfigNilBeforeLoad(t *testing.T) {
	m := certutil.New()
	if m.ClientTLSConfig("localhost") != nil {
		t.Error("expected nil ClientTLSConfig before Load")
	}
}

func TestSaveFileAndLoadFile(t *testing.T) {
	ca, _ := certutiltest.GenerateCA()
	node, _ := certutiltest.GenerateNodeCert(ca)

	path := filepath.Join(t.TempDir(), "tls.json")
	if err := certutil.SaveFile(path, node.CertPEM, node.KeyPEM, ca.CertPEM); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	m := certutil.New()
	ok, err := m.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !ok {
		t.Fatal("expected LoadFile to report found")
	}
	if m.Current() == nil {
		t.Fatal("expected state populated after LoadFile")
	}
}

func TestLoadFileMissingReturnsFalse(t *testing.T) {
	m := certutil.New()
	ok, err := m.LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if ok {
		t.Fatal("expected false for missing file")
	}
}

func TestTransportCredentialsFallsBackInsecureBeforeLoad(t *testing.T) {
	m := certutil.New()
	creds := m.TransportCredentials("localhost")
	if creds.Info().SecurityProtocol != "insecure" {
		t.Errorf("expected insecure fallback before Load, got %q", creds.Info().SecurityProtocol)
	}
}
