package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Listener is the server's listening configuration.
type Listener struct {
	// Address for TCP (and TLS, when certificates are set). Default ":11000".
	Address string
	// QUICAddress enables QUIC on this UDP address; needs CertFile/KeyFile.
	QUICAddress string
	CertFile    string
	KeyFile     string
}

// Database is the sqlite store of user keys and attempts.
type Database struct {
	Path string
}

// ServerMetrics exposes /metrics on Address when set.
type ServerMetrics struct {
	Address string
}

// ServerConfig is the reference server configuration.
type ServerConfig struct {
	Listener *Listener
	Database *Database
	Logging  *Logging
	Metrics  *ServerMetrics
}

// TLSConfig loads certificates; nil, nil when none are configured.
func (l *Listener) TLSConfig() (*tls.Config, error) {
	if l.CertFile == "" && l.KeyFile == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(l.CertFile, l.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("config: Listener: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

func (cfg *ServerConfig) sections() {
	if cfg.Listener == nil {
		cfg.Listener = &Listener{}
	}
	if cfg.Database == nil {
		cfg.Database = &Database{}
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &ServerMetrics{}
	}
}

// FixupAndValidate applies defaults and validates. CHALRESP_DB is read by LoadServer only.
func (cfg *ServerConfig) FixupAndValidate() error {
	cfg.sections()
	if cfg.Listener.Address == "" {
		cfg.Listener.Address = ":11000"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "chalresp.db"
	}
	if (cfg.Listener.CertFile == "") != (cfg.Listener.KeyFile == "") {
		return errors.New("config: Listener: CertFile and KeyFile must be set together")
	}
	if cfg.Listener.QUICAddress != "" && cfg.Listener.CertFile == "" {
		return errors.New("config: Listener: QUICAddress requires CertFile and KeyFile")
	}
	return cfg.Logging.validate()
}

// LoadServer parses b as a server config body. A nil buffer yields defaults.
func LoadServer(b []byte) (*ServerConfig, error) {
	cfg := new(ServerConfig)
	if b != nil {
		md, err := toml.Decode(string(b), cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) != 0 {
			return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
		}
	}
	cfg.sections()
	if s := os.Getenv("CHALRESP_DB"); s != "" {
		cfg.Database.Path = s
	}
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadServerFile loads the server config file; empty path yields defaults.
func LoadServerFile(f string) (*ServerConfig, error) {
	if f == "" {
		return LoadServer(nil)
	}
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return LoadServer(b)
}
