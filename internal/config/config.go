// Package config: TOML configuration for the client and the reference server.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"dev.c0redev.chalresp/internal/crypto"
	"dev.c0redev.chalresp/internal/log"
	"dev.c0redev.chalresp/internal/transport"
)

const (
	defaultLogLevel = "NOTICE"
	// DefaultUsername when neither config nor $USER name one.
	DefaultUsername = "unknown"
)

// Logging is the logging configuration.
type Logging struct {
	// Disable disables logging entirely.
	Disable bool
	// File is the log file; empty logs to stderr.
	File string
	// Level is one of CRITICAL, ERROR, WARNING, NOTICE, INFO, DEBUG.
	Level string
}

func (l *Logging) validate() error {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	if !log.ValidLevel(l.Level) {
		return fmt.Errorf("config: Logging: Level '%v' is invalid", l.Level)
	}
	return nil
}

// Server is where the client connects.
type Server struct {
	// Address host or host:port (port defaults to 11000).
	Address string
	// Transport tcp (default), tls or quic.
	Transport string
	// InsecureSkipVerify for tls/quic.
	InsecureSkipVerify bool
}

// Session carries the identity used for one challenge/response round.
type Session struct {
	// Username defaults to $USER, then "unknown". Truncated to 15 bytes on the wire.
	Username string
	// Key 16 raw bytes, or KeyHex 32 hex chars. At most one.
	Key    string
	KeyHex string
}

// ParsedKey returns the configured key, ok=false if none is set.
func (s *Session) ParsedKey() (k crypto.Key, ok bool, err error) {
	switch {
	case s.Key != "" && s.KeyHex != "":
		return k, false, errors.New("config: Session: Key and KeyHex are mutually exclusive")
	case s.Key != "":
		k, err = crypto.ParseKey(s.Key)
	case s.KeyHex != "":
		k, err = crypto.ParseKeyHex(s.KeyHex)
	default:
		return k, false, nil
	}
	if err != nil {
		return k, false, fmt.Errorf("config: Session: %w", err)
	}
	return k, true, nil
}

// Metrics for the client: one-shot process, exported to a node_exporter textfile.
type Metrics struct {
	Textfile string
}

// Config is the client configuration.
type Config struct {
	Server  *Server
	Session *Session
	Logging *Logging
	Metrics *Metrics
}

func (cfg *Config) sections() {
	if cfg.Server == nil {
		cfg.Server = &Server{}
	}
	if cfg.Session == nil {
		cfg.Session = &Session{}
	}
	if cfg.Logging == nil {
		cfg.Logging = &Logging{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = &Metrics{}
	}
}

// applyEnv overrides file values with CHALRESP_SERVER and CHALRESP_KEY.
// Load runs it once, so command line overrides applied later win.
func (cfg *Config) applyEnv() {
	cfg.sections()
	if s := os.Getenv("CHALRESP_SERVER"); s != "" {
		cfg.Server.Address = s
	}
	if s := os.Getenv("CHALRESP_KEY"); s != "" {
		cfg.Session.Key, cfg.Session.KeyHex = s, ""
	}
}

// FixupAndValidate applies defaults, then validates. It does not read
// CHALRESP_* overrides and is safe to call again after editing cfg.
func (cfg *Config) FixupAndValidate() error {
	cfg.sections()
	if cfg.Session.Username == "" {
		cfg.Session.Username = os.Getenv("USER")
	}
	if cfg.Session.Username == "" {
		cfg.Session.Username = DefaultUsername
	}

	switch cfg.Server.Transport {
	case "":
		cfg.Server.Transport = transport.NetworkTCP
	case transport.NetworkTCP, transport.NetworkTLS, transport.NetworkQUIC:
	default:
		return fmt.Errorf("config: Server: Transport '%v' is invalid", cfg.Server.Transport)
	}
	if _, _, err := cfg.Session.ParsedKey(); err != nil {
		return err
	}
	return cfg.Logging.validate()
}

// Validate requires everything needed to run a session.
func (cfg *Config) Validate() error {
	if cfg.Server == nil || cfg.Server.Address == "" {
		return errors.New("config: Server: Address is not set")
	}
	return nil
}

// Load parses the buffer b as a client config body, then applies environment
// overrides and defaults. A nil buffer yields defaults.
func Load(b []byte) (*Config, error) {
	cfg := new(Config)
	if b != nil {
		md, err := toml.Decode(string(b), cfg)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) != 0 {
			return nil, fmt.Errorf("config: Undecoded keys in config file: %v", undecoded)
		}
	}
	cfg.applyEnv()
	if err := cfg.FixupAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile loads and parses the provided file; empty path yields defaults.
func LoadFile(f string) (*Config, error) {
	if f == "" {
		return Load(nil)
	}
	b, err := os.ReadFile(f)
	if err != nil {
		return nil, err
	}
	return Load(b)
}
