package storage

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/dshills/agentic-search-mcp/internal/config"
)

// Connection pool settings for the TiDB dialect
const (
	tidbMaxOpenConns    = 10
	tidbMaxIdleConns    = 5
	tidbConnMaxLifetime = 5 * time.Minute
	tidbTimeout         = 10 * time.Second
)

// openTiDB opens a pooled MySQL-protocol connection verified against the CA
// file at caPath
func openTiDB(conn config.Connection, caPath string) (*sql.DB, error) {
	cfg := mysql.NewConfig()
	cfg.User = conn.User
	cfg.Passwd = conn.Password
	cfg.Net = "tcp"
	cfg.Addr = conn.Addr()
	cfg.DBName = conn.Database
	cfg.Timeout = tidbTimeout
	cfg.ReadTimeout = tidbTimeout
	cfg.WriteTimeout = tidbTimeout
	cfg.ParseTime = true

	if caPath != "" {
		name, err := registerTLS(conn.Host, caPath)
		if err != nil {
			return nil, err
		}
		cfg.TLSConfig = name
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	db.SetMaxOpenConns(tidbMaxOpenConns)
	db.SetMaxIdleConns(tidbMaxIdleConns)
	db.SetConnMaxLifetime(tidbConnMaxLifetime)
	return db, nil
}

// registerTLS registers a TLS profile trusting the given CA and returns its
// name. Profiles are keyed by host and CA path so repeated opens reuse one.
func registerTLS(host, caPath string) (string, error) {
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return "", fmt.Errorf("read TLS CA %s: %w", caPath, err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return "", errors.New("TLS CA " + caPath + " contains no PEM certificates")
	}

	sum := sha256.Sum256([]byte(host + "\x00" + caPath))
	name := "tidb-" + hex.EncodeToString(sum[:8])

	err = mysql.RegisterTLSConfig(name, &tls.Config{
		RootCAs:    pool,
		ServerName: host,
		MinVersion: tls.VersionTLS12,
	})
	if err != nil {
		return "", fmt.Errorf("register TLS config: %w", err)
	}
	return name, nil
}
