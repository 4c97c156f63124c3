// pubky-go is a self-sovereign identity and personal-storage platform.
// Copyright (C) 2024 The pubky-go Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads and saves the ini-formatted configuration file
// shared by the homeserver and relay binaries.
package config

import (
	"fmt"

	"gopkg.in/ini.v1"

	"github.com/pubky-network/pubky-go/internal/applog"
)

const postgresDB = "postgres"

// Config is the top-level on-disk configuration structure.
type Config struct {
	Server     ServerConfig     `ini:"server" comment:"HTTP server configuration"`
	Database   DatabaseConfig   `ini:"database" comment:"Database configuration"`
	Homeserver HomeserverConfig `ini:"homeserver" comment:"Homeserver storage and signup policy"`
	Pkdns      PkdnsConfig      `ini:"pkdns" comment:"PKDNS resolver/publisher configuration"`
	Relay      RelayConfig      `ini:"relay" comment:"Rendezvous relay configuration"`
}

// Default returns a Config populated with the documented defaults, for a
// freshly-initialized server of the given database kind.
func Default(dbKind string) (*Config, error) {
	db, err := defaultDatabaseConfig(dbKind)
	if err != nil {
		return nil, err
	}
	return &Config{
		Server:     defaultServerConfig(),
		Database:   db,
		Homeserver: defaultHomeserverConfig(),
		Pkdns:      defaultPkdnsConfig(),
		Relay:      defaultRelayConfig(),
	}, nil
}

// ServerConfig configures the HTTP server shared by every binary.
type ServerConfig struct {
	Host                    string `ini:"sr_host" comment:"(required) Host with TLD for this instance"`
	ListenAddr              string `ini:"sr_listen_addr" comment:"(default: :8080) Address the homeserver HTTP server listens on"`
	AdminListenAddr         string `ini:"sr_admin_listen_addr" comment:"(default: 127.0.0.1:8081) Loopback address the admin HTTP surface listens on"`
	AdminPassword           string `ini:"sr_admin_password" comment:"(required to enable the admin surface) Basic-Auth password for the \"admin\" user; admin surface is disabled if empty"`
	CookieAuthKeyFile       string `ini:"sr_cookie_auth_key_file" comment:"Path to a private key file for cookie authentication; not read by any code in this tree"`
	CookieEncryptionKeyFile string `ini:"sr_cookie_encryption_key_file" comment:"Path to a private key file for cookie encryption; not read by any code in this tree"`
	CookieMaxAgeSeconds     int    `ini:"sr_cookie_max_age" comment:"(default: 86400 seconds) Not read by any code in this tree; session cookies are issued without Max-Age"`
	ReadTimeoutSeconds      int    `ini:"sr_read_timeout_seconds" comment:"Timeout in seconds for incoming requests; zero or unset does not time out"`
	WriteTimeoutSeconds     int    `ini:"sr_write_timeout_seconds" comment:"Timeout in seconds for outgoing responses; zero or unset does not time out"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:          ":8080",
		AdminListenAddr:     "127.0.0.1:8081",
		CookieMaxAgeSeconds: 86400,
	}
}

// DatabaseConfig configures the relational store.
type DatabaseConfig struct {
	Kind           string         `ini:"db_kind" comment:"(required) \"postgres\" or \"sqlite\" (sqlite intended for tests/single-node)"`
	MaxOpenConns   int            `ini:"db_max_open_conns" comment:"(default: infinite) Maximum number of open connections; zero or unset means infinite"`
	MaxIdleConns   int            `ini:"db_max_idle_conns" comment:"(default: 2) Maximum number of idle connections kept open"`
	Postgres       PostgresConfig `ini:"db_postgres,omitempty" comment:"Only needed if db_kind is postgres"`
	SQLitePath     string         `ini:"db_sqlite_path,omitempty" comment:"Only needed if db_kind is sqlite"`
}

func defaultDatabaseConfig(kind string) (DatabaseConfig, error) {
	d := DatabaseConfig{Kind: kind, MaxIdleConns: 2}
	switch kind {
	case postgresDB:
		d.Postgres = defaultPostgresConfig()
	case "sqlite":
		d.SQLitePath = "pubky.db"
	default:
		return DatabaseConfig{}, fmt.Errorf("config: unsupported database kind %q", kind)
	}
	return d, nil
}

// PostgresConfig configures a Postgres connection, mirroring the
// jackc/pgx/v4/stdlib DSN fields.
type PostgresConfig struct {
	DatabaseName string `ini:"pg_db_name" comment:"(required) Database name"`
	UserName     string `ini:"pg_user" comment:"(required) User to connect as"`
	Host         string `ini:"pg_host" comment:"(default: localhost)"`
	Port         int    `ini:"pg_port" comment:"(default: 5432)"`
	SSLMode      string `ini:"pg_ssl_mode" comment:"(default: require) disable, require, verify-ca, verify-full"`
}

func defaultPostgresConfig() PostgresConfig {
	return PostgresConfig{Host: "localhost", Port: 5432, SSLMode: "require"}
}

// HomeserverConfig configures storage quota and signup policy.
type HomeserverConfig struct {
	DataDirectory         string   `ini:"hs_data_directory" comment:"(required) Root directory for content-addressed blob storage"`
	IdentityKeyFile       string   `ini:"hs_identity_key_file" comment:"(default: identity.pkarr) Path to this homeserver's own z-base-32 identity seed file"`
	DefaultQuotaBytes     int64    `ini:"hs_default_quota_bytes" comment:"(default: 1073741824) Default per-user storage quota in bytes"`
	QuotaOverridePatterns []string `ini:"hs_quota_override_patterns" comment:"Comma-separated glob=bytes pairs granting a different quota to matching paths, e.g. /pub/backups/*=10737418240"`
	SignupMode            string   `ini:"hs_signup_mode" comment:"(default: open) token_required demands a signup code; any other value allows open signup"`
	BackupIntervalSeconds int      `ini:"hs_backup_interval_seconds" comment:"(default: 0, disabled) Interval between database snapshot/backup passes; zero disables"`
	BackupDirectory       string   `ini:"hs_backup_directory" comment:"(default: backups) Directory periodic database snapshots are written to"`
}

func defaultHomeserverConfig() HomeserverConfig {
	return HomeserverConfig{
		IdentityKeyFile:   "identity.pkarr",
		DefaultQuotaBytes: 1 << 30,
		SignupMode:        "open",
		BackupDirectory:   "backups",
	}
}

// PkdnsConfig configures the republisher's cadence. The resolver's retry
// count and backoff are constants in package pkdns, not settings.
type PkdnsConfig struct {
	RepublishIntervalSeconds int `ini:"pd_republish_interval_seconds" comment:"(default: 14400, floor: 1800) Minimum interval between homeserver-record republish passes"`
	ResolveTimeoutSeconds    int `ini:"pd_resolve_timeout_seconds" comment:"(default: 10) Not read by any code in this tree; PKDNS resolution applies no per-attempt timeout"`
}

func defaultPkdnsConfig() PkdnsConfig {
	return PkdnsConfig{RepublishIntervalSeconds: 14400, ResolveTimeoutSeconds: 10}
}

// RelayConfig configures the rendezvous relay.
type RelayConfig struct {
	Port                  int `ini:"rl_port" comment:"(default: 15412) Port the relay HTTP server listens on"`
	ChannelIdleSeconds    int `ini:"rl_channel_idle_seconds" comment:"(default: 60) A channel with no activity for this long is destroyed"`
	MaxPayloadBytes       int `ini:"rl_max_payload_bytes" comment:"(default: 65536) Maximum encrypted payload size accepted on a channel"`
}

func defaultRelayConfig() RelayConfig {
	return RelayConfig{Port: 15412, ChannelIdleSeconds: 60, MaxPayloadBytes: 65536}
}

// Load reads and unmarshals an ini-formatted configuration file.
func Load(filename string) (*Config, error) {
	applog.Info.Infof("config: loading %s", filename)
	f, err := ini.Load(filename)
	if err != nil {
		return nil, err
	}
	c := &Config{}
	if err := f.MapTo(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Save writes c to filename in ini format, including the per-field doc
// comments declared on the struct tags.
func Save(filename string, c *Config) error {
	applog.Info.Infof("config: saving %s", filename)
	f := ini.Empty()
	if err := ini.ReflectFrom(f, c); err != nil {
		return err
	}
	return f.SaveTo(filename)
}
