package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/sweeney/landfill-aeration/internal/logic"
)

// MySQLConfig configures the MySQL log backend.
type MySQLConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// DefaultTable is used when MySQLConfig.Table is empty.
const DefaultTable = "aeration_log"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQL stores records in a MySQL table. Rows are ordered by an
// auto-increment id, which is write order.
type SQL struct {
	db     *sql.DB
	table  string
	logger *zap.SugaredLogger

	// OnSkip, if set, is called for every malformed row ReadAll skips.
	OnSkip SkipFunc
}

// OpenMySQL opens the database, waits for it to answer and makes sure the
// log table exists.
func OpenMySQL(config MySQLConfig, logger *zap.SugaredLogger) (*SQL, error) {
	dsn, err := mysqlDSN(config.DSN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("database connection error: %w", err)
	}

	err = retry.Do(
		db.Ping,
		retry.Attempts(5),
		retry.Delay(time.Second),
		retry.OnRetry(func(n uint, err error) {
			logger.Warnw("database not ready", "attempt", n+1, "err", err)
		}),
	)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s, err := NewSQL(db, config.Table, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := s.EnsureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// mysqlDSN forces parseTime so DATETIME scans into time.Time, and loc=Local
// so the ts column holds the same wall clock the CSV log does.
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.Local
	return cfg.FormatDSN(), nil
}

// NewSQL wraps an open database handle.
func NewSQL(db *sql.DB, table string, logger *zap.SugaredLogger) (*SQL, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &SQL{db: db, table: table, logger: logger}, nil
}

// EnsureSchema creates the log table if it is missing.
func (s *SQL) EnsureSchema() error {
	q := "CREATE TABLE IF NOT EXISTS `" + s.table + "` (" +
		"`id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY, " +
		"`ts` DATETIME NOT NULL, " +
		"`temperature` DOUBLE NOT NULL, " +
		"`oxygen` DOUBLE NOT NULL, " +
		"`humidity` DOUBLE NOT NULL, " +
		"`ph` DOUBLE NOT NULL, " +
		"`status` VARCHAR(3) NOT NULL)"
	if _, err := s.db.Exec(q); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Append inserts one row in its own statement.
func (s *SQL) Append(rec logic.Record) error {
	q := "INSERT INTO `" + s.table + "` (`ts`, `temperature`, `oxygen`, `humidity`, `ph`, `status`) " +
		"VALUES (?, ?, ?, ?, ?, ?)"
	_, err := s.db.Exec(q,
		rec.Timestamp.Truncate(time.Second),
		rec.Reading.Temperature,
		rec.Reading.Oxygen,
		rec.Reading.Humidity,
		rec.Reading.PH,
		string(rec.Decision),
	)
	if err != nil {
		return &LogWriteError{Target: s.table, Err: err}
	}
	return nil
}

// ReadAll returns every row in id order, skipping rows that do not decode.
func (s *SQL) ReadAll() ([]logic.Record, error) {
	q := "SELECT `ts`, `temperature`, `oxygen`, `humidity`, `ph`, `status` FROM `" + s.table + "` ORDER BY `id`"
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.table, err)
	}
	defer rows.Close()

	records := []logic.Record{}
	n := 0
	for rows.Next() {
		n++
		var (
			rec    logic.Record
			status string
		)
		err := rows.Scan(logTime{&rec.Timestamp}, &rec.Reading.Temperature, &rec.Reading.Oxygen,
			&rec.Reading.Humidity, &rec.Reading.PH, &status)
		if err == nil {
			err = checkReading(rec.Reading)
		}
		if err == nil {
			rec.Decision, err = logic.ParseDecision(status)
		}
		if err != nil {
			s.skip(&MalformedRowError{Line: n, Err: err})
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", s.table, err)
	}
	return records, nil
}

// logTime scans the ts column. Handles opened without parseTime return
// DATETIME as text, so both forms are accepted.
type logTime struct{ t *time.Time }

func (l logTime) Scan(src interface{}) error {
	var text string
	switch v := src.(type) {
	case time.Time:
		*l.t = v
		return nil
	case []byte:
		text = string(v)
	case string:
		text = v
	default:
		return fmt.Errorf("ts: unsupported type %T", src)
	}
	t, err := time.ParseInLocation(TimeLayout, text, time.Local)
	if err != nil {
		return fmt.Errorf("ts: %w", err)
	}
	*l.t = t
	return nil
}

func checkReading(r logic.Reading) error {
	for i, v := range [4]float64{r.Temperature, r.Oxygen, r.Humidity, r.PH} {
		if err := checkFinite(Columns[i+1], v); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database handle.
func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) skip(err *MalformedRowError) {
	if s.logger != nil {
		s.logger.Warnw("skipping malformed log row", "table", s.table, "row", err.Line, "err", err.Err)
	}
	if s.OnSkip != nil {
		s.OnSkip(err)
	}
}
