// Package config holds the client's runtime settings, read from a TOML file
// laid over built-in defaults.
package config

import (
	"encoding/hex"
	"io"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golang/glog"
	"github.com/pkg/errors"

	"badc0de.net/pkg/go-ragnarok/net/crypt"
	"badc0de.net/pkg/go-ragnarok/net/transport"
	"badc0de.net/pkg/go-ragnarok/secrets"
)

// FileName is the config file looked up with paths.Find.
const FileName = "roclient.toml"

// Config is the validated client configuration.
type Config struct {
	PacketVersion int
	PacketDump    bool

	SocketProxy         string
	DisableNativeSocket bool

	KeepaliveInterval time.Duration
	ConnectTimeout    time.Duration

	Cipher          string
	ObfuscationKeys crypt.Keys
	ChaCha20Key     []byte
	ChaCha20Nonce   []byte

	LoginHost string
	LoginPort int

	DebugListenAddress string
}

// fileConfig is the TOML key mapping.
type fileConfig struct {
	PacketVersion       int      `toml:"packet_version"`
	PacketDump          bool     `toml:"packet_dump"`
	SocketProxy         string   `toml:"socket_proxy"`
	DisableNativeSocket bool     `toml:"disable_native_socket"`
	KeepaliveInterval   string   `toml:"keepalive_interval"`
	ConnectTimeout      string   `toml:"connect_timeout"`
	Cipher              string   `toml:"cipher"`
	ObfuscationKeys     []uint32 `toml:"obfuscation_keys"`
	ChaCha20Key         string   `toml:"chacha20_key"`
	ChaCha20Nonce       string   `toml:"chacha20_nonce"`
	LoginHost           string   `toml:"login_host"`
	LoginPort           int      `toml:"login_port"`
	DebugListenAddress  string   `toml:"debug_listen_address"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	c := Config{
		PacketVersion:     20120410,
		KeepaliveInterval: 10 * time.Second,
		ConnectTimeout:    10 * time.Second,
		Cipher:            "obfuscate",
		LoginHost:         "127.0.0.1",
		LoginPort:         6900,
	}
	c.ObfuscationKeys, _ = secrets.ObfuscationKeys(c.PacketVersion)
	return c
}

// Load reads the file at path over Default and validates the result.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.Wrapf(err, "loading config %q", path)
	}
	c, err := overlay(raw, meta)
	return c, errors.Wrapf(err, "loading config %q", path)
}

// Read is Load for configs that do not live on a local filesystem.
func Read(r io.Reader) (Config, error) {
	var raw fileConfig
	meta, err := toml.NewDecoder(r).Decode(&raw)
	if err != nil {
		return Config{}, errors.Wrap(err, "reading config")
	}
	c, err := overlay(raw, meta)
	return c, errors.Wrap(err, "reading config")
}

func overlay(raw fileConfig, meta toml.MetaData) (Config, error) {
	c := Default()
	var err error

	if und := meta.Undecoded(); len(und) > 0 {
		glog.Warningf("ignoring unknown config keys: %v", und)
	}

	if meta.IsDefined("packet_version") {
		c.PacketVersion = raw.PacketVersion
		// Keys follow the version unless given explicitly.
		c.ObfuscationKeys, _ = secrets.ObfuscationKeys(c.PacketVersion)
	}
	if meta.IsDefined("packet_dump") {
		c.PacketDump = raw.PacketDump
	}
	if meta.IsDefined("socket_proxy") {
		c.SocketProxy = strings.TrimSpace(raw.SocketProxy)
	}
	if meta.IsDefined("disable_native_socket") {
		c.DisableNativeSocket = raw.DisableNativeSocket
	}
	if meta.IsDefined("keepalive_interval") {
		if c.KeepaliveInterval, err = time.ParseDuration(raw.KeepaliveInterval); err != nil {
			return Config{}, errors.Wrap(err, "keepalive_interval")
		}
	}
	if meta.IsDefined("connect_timeout") {
		if c.ConnectTimeout, err = time.ParseDuration(raw.ConnectTimeout); err != nil {
			return Config{}, errors.Wrap(err, "connect_timeout")
		}
	}
	if meta.IsDefined("cipher") {
		c.Cipher = strings.TrimSpace(raw.Cipher)
	}
	if meta.IsDefined("obfuscation_keys") {
		if len(raw.ObfuscationKeys) != len(c.ObfuscationKeys) {
			return Config{}, errors.Errorf("obfuscation_keys: got %d keys, want %d", len(raw.ObfuscationKeys), len(c.ObfuscationKeys))
		}
		copy(c.ObfuscationKeys[:], raw.ObfuscationKeys)
	}
	if meta.IsDefined("chacha20_key") {
		if c.ChaCha20Key, err = hex.DecodeString(strings.TrimSpace(raw.ChaCha20Key)); err != nil {
			return Config{}, errors.Wrap(err, "chacha20_key")
		}
	}
	if meta.IsDefined("chacha20_nonce") {
		if c.ChaCha20Nonce, err = hex.DecodeString(strings.TrimSpace(raw.ChaCha20Nonce)); err != nil {
			return Config{}, errors.Wrap(err, "chacha20_nonce")
		}
	}
	if meta.IsDefined("login_host") {
		c.LoginHost = strings.TrimSpace(raw.LoginHost)
	}
	if meta.IsDefined("login_port") {
		c.LoginPort = raw.LoginPort
	}
	if meta.IsDefined("debug_listen_address") {
		c.DebugListenAddress = strings.TrimSpace(raw.DebugListenAddress)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports the first setting the client cannot run with.
func (c Config) Validate() error {
	if c.PacketVersion < 10000000 || c.PacketVersion > 99999999 {
		return errors.Errorf("packet_version %d is not a YYYYMMDD date code", c.PacketVersion)
	}
	if c.KeepaliveInterval <= 0 {
		return errors.Errorf("keepalive_interval %s must be positive", c.KeepaliveInterval)
	}
	if c.ConnectTimeout <= 0 {
		return errors.Errorf("connect_timeout %s must be positive", c.ConnectTimeout)
	}
	if c.LoginPort <= 0 || c.LoginPort > 0xFFFF {
		return errors.Errorf("login_port %d out of range", c.LoginPort)
	}
	if c.LoginHost == "" {
		return errors.New("login_host is empty")
	}
	if _, err := c.NewCipher()(); err != nil {
		return errors.Wrap(err, "cipher")
	}
	return nil
}

// NewCipher returns a constructor for the configured gameplay cipher.
func (c Config) NewCipher() func() (crypt.Cipher, error) {
	return func() (crypt.Cipher, error) {
		return crypt.New(c.Cipher, c.ObfuscationKeys, c.ChaCha20Key, c.ChaCha20Nonce)
	}
}

// TransportOptions maps the socket settings onto the transport strategy.
func (c Config) TransportOptions() transport.Options {
	return transport.Options{
		DisableNative: c.DisableNativeSocket,
		ProxyURL:      c.SocketProxy,
	}
}
