package sqldb

import (
	"database/sql"
	"fmt"

	"github.com/bfbechlin/appwrite-ctl/pkg/validator"
	"github.com/jmoiron/sqlx"
	sqldblogger "github.com/simukti/sqldb-logger"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type Driver string

func (d Driver) String() string {
	return string(d)
}

const (
	Mysql    Driver = "mysql"
	Postgres Driver = "postgres"
	Sqlite3  Driver = "sqlite3"
)

type Config struct {
	Driver Driver `validate:"required,oneof=postgres mysql sqlite3"`
	DSN    string `validate:"required"` // Data Source Name
	Debug  bool   `validate:"-"`
}

// Open connects to the configured database and pings it.
// With Debug set every statement is logged through ylog at debug level.
func Open(cfg Config) (*sqlx.DB, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("sql db config: %w", err)
	}

	driver := cfg.Driver.String()
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("cannot open db connection '%s': %w", driver, err)
	}

	if cfg.Debug {
		// the wrapper opens its own pool on the same driver
		raw := db
		db = sqldblogger.OpenDriver(cfg.DSN, raw.Driver(), &QueryLogger{Driver: cfg.Driver}, sqldblogger.WithConnectionIDFieldname(driver))
		if err = raw.Close(); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("close unwrapped db connection '%s': %w", driver, err)
		}
	}

	// every sqlite connection to :memory: is a different database
	if cfg.Driver == Sqlite3 {
		db.SetMaxOpenConns(1)
	}

	if err = db.Ping(); err != nil {
		if _err := db.Close(); _err != nil {
			err = fmt.Errorf("%w: close: %s", err, _err)
		}

		return nil, fmt.Errorf("error connecting to database %s: %w", driver, err)
	}

	return sqlx.NewDb(db, driver), nil
}
