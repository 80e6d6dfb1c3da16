// Package conn opens gorm database handles.
package conn

import (
	"fmt"
	"net/url"

	"execcore/pkg/exception"

	"github.com/yanun0323/errors"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	defaultPostgresHost    = "localhost"
	defaultPostgresPort    = 5432
	defaultPostgresSSLMode = "disable"
)

// Option defines a database connection. For sqlite, DSN is the file path.
type Option struct {
	Driver   string
	DSN      string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Params   map[string]string
	// Config overrides the gorm config. The default silences gorm's logger.
	Config *gorm.Config
}

// Client wraps a database connection pool.
type Client struct {
	driver string
	db     *gorm.DB
}

func New(option Option) (*Client, error) {
	dialector, err := option.dialector()
	if err != nil {
		return nil, err
	}

	config := option.Config
	if config == nil {
		config = &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, errors.Wrap(err, "open database").With("driver", option.Driver)
	}

	return &Client{driver: option.Driver, db: db}, nil
}

// DB returns the underlying gorm.DB instance.
func (c *Client) DB() *gorm.DB {
	if c == nil {
		return nil
	}
	return c.db
}

func (c *Client) Driver() string {
	if c == nil {
		return ""
	}
	return c.driver
}

// Close closes the underlying connection pool.
func (c *Client) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (opt Option) dialector() (gorm.Dialector, error) {
	switch opt.Driver {
	case DriverSQLite:
		if opt.DSN == "" {
			return nil, errors.Wrap(exception.ErrInvalidArgument, "sqlite dsn is empty")
		}
		return sqlite.Open(opt.DSN), nil
	case DriverPostgres, "":
		return postgres.Open(opt.postgresDSN()), nil
	default:
		return nil, errors.Wrap(exception.ErrArgumentUnsupported, "database driver").With("driver", opt.Driver)
	}
}

func (opt Option) postgresDSN() string {
	if opt.DSN != "" {
		return opt.DSN
	}

	host := opt.Host
	if host == "" {
		host = defaultPostgresHost
	}

	port := opt.Port
	if port == 0 {
		port = defaultPostgresPort
	}

	sslMode := opt.SSLMode
	if sslMode == "" {
		sslMode = defaultPostgresSSLMode
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", host, port),
	}

	if opt.User != "" {
		if opt.Password != "" {
			u.User = url.UserPassword(opt.User, opt.Password)
		} else {
			u.User = url.User(opt.User)
		}
	}

	if opt.Database != "" {
		u.Path = "/" + opt.Database
	}

	query := url.Values{}
	query.Set("sslmode", sslMode)
	for key, value := range opt.Params {
		if key == "" {
			continue
		}
		query.Set(key, value)
	}
	u.RawQuery = query.Encode()

	return u.String()
}
