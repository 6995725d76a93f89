// Package certutil manages the mTLS material a data node uses to talk to
// its master cells and to serve its own RPC surface: an atomically
// swappable certificate/CA pair that can be hot-reloaded from disk
// without restarting the process.
package certutil

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// persistedFile is the on-disk format for saved TLS material.
type persistedFile struct {
	CACertPEM string `json:"ca_cert_pem"`
	CertPEM   string `json:"cert_pem"`
	KeyPEM    string `json:"key_pem"`
}

// State holds one loaded certificate/CA pair.
type State struct {
	Cert   tls.Certificate
	CACert *x509.Certificate
	CAPool *x509.CertPool
}

// Manager provides atomic access to a node's TLS material. Readers take a
// snapshot via Current; Load installs a new one. A nil snapshot means no
// material has been loaded yet.
type Manager struct {
	state atomic.Pointer[State]
}

// New returns an empty Manager. Load must be called before any TLS config
// it produces can complete a handshake.
func New() *Manager {
	return &Manager{}
}

// Load parses PEM-encoded certificate material and atomically swaps the
// state. In-flight connections keep their existing state; new connections
// see the update.
func (m *Manager) Load(certPEM, keyPEM, caCertPEM []byte) error {
	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("certutil: parse cert/key: %w", err)
	}

	block, _ := pem.Decode(caCertPEM)
	if block == nil {
		return errors.New("certutil: decode CA cert PEM: no PEM block found")
	}
	caCert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return fmt.Errorf("certutil: parse CA cert: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	m.state.Store(&State{Cert: cert, CACert: caCert, CAPool: pool})
	return nil
}

// Current returns the currently loaded state, or nil if Load has not run.
func (m *Manager) Current() *State {
	return m.state.Load()
}

// SaveFile persists raw PEM material to path, atomically, with 0600
// permissions, so it survives a restart without depending on the master
// cell re-issuing it.
func SaveFile(path string, certPEM, keyPEM, caCertPEM []byte) error {
	data, err := json.Marshal(persistedFile{
		CACertPEM: string(caCertPEM),
		CertPEM:   string(certPEM),
		KeyPEM:    string(keyPEM),
	})
	if err != nil {
		return fmt.Errorf("certutil: marshal: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("certutil: write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("certutil: rename into place: %w", err)
	}
	return nil
}

// LoadFile reads persisted TLS material from path and installs it. Returns
// false if path does not exist yet (first-run enrollment).
func (m *Manager) LoadFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("certutil: read %s: %w", path, err)
	}

	var f persistedFile
	if err := json.Unmarshal(data, &f); err != nil {
		return false, fmt.Errorf("certutil: unmarshal %s: %w", path, err)
	}
	if err := m.Load([]byte(f.CertPEM), []byte(f.KeyPEM), []byte(f.CACertPEM)); err != nil {
		return false, fmt.Errorf("certutil: load from %s: %w", path, err)
	}
	return true, nil
}

// ServerTLSConfig returns a tls.Config for the data node's RPC listener.
// GetCertificate reads the atomic state on every handshake so a rotated
// cert takes effect without restarting the server.
func (m *Manager) ServerTLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			st := m.state.Load()
			if st == nil {
				return nil, errors.New("certutil: TLS material not loaded")
			}
			return &st.Cert, nil
		},
		ClientCAs:  m.currentPool(),
		ClientAuth: tls.VerifyClientCertIfGiven,
		MinVersion: tls.VersionTLS13,
	}
}

// ClientTLSConfig returns a tls.Config for dialing a master cell.
func (m *Manager) ClientTLSConfig(serverName string) *tls.Config {
	st := m.state.Load()
	if st == nil {
		return nil
	}
	return &tls.Config{
		Certificates: []tls.Certificate{st.Cert},
		RootCAs:      st.CAPool,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS13,
	}
}

func (m *Manager) currentPool() *x509.CertPool {
	st := m.state.Load()
	if st == nil {
		return nil
	}
	return st.CAPool
}

// TransportCredentials returns gRPC transport credentials for dialing a
// master cell with mTLS. Before Load has run, handshakes fall back to
// insecure and automatically upgrade once TLS material is installed,
// letting the connector start dialing before enrollment completes.
func (m *Manager) TransportCredentials(serverName string) credentials.TransportCredentials {
	return &dynamicCreds{mgr: m, serverName: serverName}
}

type dynamicCreds struct {
	mgr        *Manager
	serverName string
}

func (d *dynamicCreds) ClientHandshake(ctx context.Context, authority string, rawConn net.Conn) (net.Conn, credentials.AuthInfo, error) {
	return d.current().ClientHandshake(ctx, authority, rawConn)
}

func (d *dynamicCreds) ServerHandshake(rawConn net.Conn) (net.Conn, credentials.AuthInfo, error) {
	return d.current().ServerHandshake(rawConn)
}

func (d *dynamicCreds) Info() credentials.ProtocolInfo {
	return d.current().Info()
}

func (d *dynamicCreds) Clone() credentials.TransportCredentials {
	return &dynamicCreds{mgr: d.mgr, serverName: d.serverName}
}

func (d *dynamicCreds) OverrideServerName(name string) error {
	d.serverName = name
	return nil
}

func (d *dynamicCreds) current() credentials.TransportCredentials {
	st := d.mgr.state.Load()
	if st == nil {
		return insecure.NewCredentials()
	}
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{st.Cert},
		RootCAs:      st.CAPool,
		ServerName:   d.serverName,
		MinVersion:   tls.VersionTLS13,
	})
}
