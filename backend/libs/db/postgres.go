package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	defaultMaxOpenConns = 4
	defaultMaxIdleConns = 2
	defaultConnLifetime = time.Hour
	defaultConnIdleTime = 5 * time.Minute
	defaultPingTimeout  = 5 * time.Second
)

// Credentials describe a PostgreSQL endpoint the way field deployments configure it:
// separate user/password/host/name variables instead of a single DSN.
type Credentials struct {
	User     string
	Password string
	Host     string
	Port     int
	Name     string
}

// DSN renders credentials as a postgres:// URL with escaped user info.
func (c Credentials) DSN() string {
	host := strings.TrimSpace(c.Host)
	if host == "" {
		return ""
	}
	if c.Port > 0 && !strings.Contains(host, ":") {
		host = fmt.Sprintf("%s:%d", host, c.Port)
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   host,
		Path:   "/" + strings.TrimPrefix(c.Name, "/"),
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}
	return u.String()
}

// Open creates a pgx/stdlib backed *sql.DB pool without contacting the server.
func Open(dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("db: empty DSN")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnLifetime)
	db.SetConnMaxIdleTime(defaultConnIdleTime)
	return db, nil
}

// NewPostgresDB opens the pool and validates the connection.
func NewPostgresDB(dsn string) (*sql.DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}
