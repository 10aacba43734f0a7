package database

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

const (
	Postgres = "postgres"
	SQLite   = "sqlite3"
)

type DB struct {
	Driver       string `yaml:"driver" envconfig:"DB_DRIVER" default:"postgres"`
	Host         string `yaml:"host" envconfig:"DB_HOST" default:"localhost"`
	Port         int    `yaml:"port" envconfig:"DB_PORT" default:"5432"`
	Username     string `yaml:"user" envconfig:"DB_USER" default:"postgres"`
	Password     string `yaml:"password" envconfig:"DB_PASSWORD" json:"-"`
	NameDB       string `yaml:"dbname" envconfig:"DB_NAME" default:"catalog"`
	SSLMode      string `yaml:"sslmode" envconfig:"DB_SSLMODE" default:"disable"`
	Path         string `yaml:"path" envconfig:"DB_PATH" default:"catalog.db"`
	MaxOpenConns int    `yaml:"maxOpenConns" envconfig:"DB_MAX_OPEN_CONNS" default:"10"`
}

// DriverName is the database/sql driver registered for cfg.Driver.
func (c *DB) DriverName() string {
	if c.Driver == SQLite {
		return SQLite
	}
	return "pgx"
}

func (c *DB) DSN() string {
	if c.Driver == SQLite {
		// IMMEDIATE transactions take the write lock on BEGIN, so concurrent
		// lending transactions queue on busy_timeout instead of deadlocking.
		return fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=5000&_foreign_keys=1&_loc=UTC", c.Path)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Username, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.NameDB,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	return u.String()
}

// Open connects without touching the schema.
func Open(ctx context.Context, cfg *DB) (*sqlx.DB, error) {
	if cfg.Driver != Postgres && cfg.Driver != SQLite {
		return nil, errors.Errorf("unsupported db driver %q", cfg.Driver)
	}
	db, err := sqlx.Open(cfg.DriverName(), cfg.DSN())
	if err != nil {
		return nil, errors.Wrap(err, "sqlx.Open")
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "db.Ping")
	}
	return db, nil
}

// NewDB connects and applies every pending migration.
func NewDB(ctx context.Context, cfg *DB, migrations fs.FS) (*sqlx.DB, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db, cfg.Driver, migrations, "up"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate runs a goose command ("up", "down" or "status") against migrations at the fs root.
func Migrate(db *sqlx.DB, driver string, migrations fs.FS, command string) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(driver); err != nil {
		return errors.Wrap(err, "goose.SetDialect")
	}
	var err error
	switch command {
	case "up":
		err = goose.Up(db.DB, ".")
	case "down":
		err = goose.Down(db.DB, ".")
	case "status":
		err = goose.Status(db.DB, ".")
	default:
		return errors.Errorf("unknown migrate command %q", command)
	}
	return errors.Wrapf(err, "goose %s", command)
}
