package store

import (
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/sweeney/landfill-aeration/internal/logic"
)

var sqlColumns = []string{"ts", "temperature", "oxygen", "humidity", "ph", "status"}

func newMockSQL(t *testing.T) (*SQL, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewSQL(db, "", zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("NewSQL: %v", err)
	}
	return s, mock
}

func TestNewSQLRejectsBadTableName(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	for _, name := range []string{"log; DROP TABLE x", "1log", "a-b", "`x`"} {
		if _, err := NewSQL(db, name, nil); err == nil {
			t.Errorf("expected error for table name %q", name)
		}
	}
}

func TestSQLEnsureSchema(t *testing.T) {
	s, mock := newMockSQL(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `aeration_log`")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.EnsureSchema(); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLAppend(t *testing.T) {
	s, mock := newMockSQL(t)
	rec := logic.Record{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 500, time.Local),
		Reading:   logic.Reading{Temperature: 41.5, Oxygen: 9.2, Humidity: 48, PH: 7.1},
		Decision:  logic.DecisionOn,
	}
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `aeration_log`")).
		WithArgs(rec.Timestamp.Truncate(time.Second), 41.5, 9.2, 48.0, 7.1, "ON").
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := s.Append(rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSQLAppendError(t *testing.T) {
	s, mock := newMockSQL(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `aeration_log`")).
		WillReturnError(errors.New("table is locked"))

	err := s.Append(logic.Record{Timestamp: time.Now(), Decision: logic.DecisionOff})
	var lwe *LogWriteError
	if !errors.As(err, &lwe) {
		t.Fatalf("expected LogWriteError, got %v", err)
	}
	if lwe.Target != DefaultTable {
		t.Errorf("Target: got %q, want %q", lwe.Target, DefaultTable)
	}
}

func TestSQLReadAll(t *testing.T) {
	s, mock := newMockSQL(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	rows := sqlmock.NewRows(sqlColumns).
		AddRow(t0, 41.5, 9.2, 48.0, 7.1, "ON").
		AddRow(t0.Add(2*time.Second), 35.0, 15.0, 60.0, 6.5, "OFF")
	mock.ExpectQuery(regexp.QuoteMeta("FROM `aeration_log` ORDER BY `id`")).WillReturnRows(rows)

	got, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(t0) || got[0].Decision != logic.DecisionOn || got[0].Reading.Oxygen != 9.2 {
		t.Errorf("record 0: %+v", got[0])
	}
	if got[1].Decision != logic.DecisionOff {
		t.Errorf("record 1 decision: %s", got[1].Decision)
	}
}

func TestSQLReadAllSkipsMalformedRows(t *testing.T) {
	s, mock := newMockSQL(t)
	var skipped []*MalformedRowError
	s.OnSkip = func(err *MalformedRowError) { skipped = append(skipped, err) }

	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	rows := sqlmock.NewRows(sqlColumns).
		AddRow(t0, 41.5, 9.2, 48.0, 7.1, "ON").
		AddRow(t0, "warm", 9.2, 48.0, 7.1, "ON").
		AddRow(t0, 41.5, 9.2, 48.0, 7.1, "BROKEN").
		AddRow(t0, 35.0, 15.0, 60.0, 6.5, "OFF")
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	got, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 records, got %d", len(got))
	}
	if len(skipped) != 2 {
		t.Fatalf("expected 2 skipped rows, got %d", len(skipped))
	}
	if skipped[0].Line != 2 || skipped[1].Line != 3 {
		t.Errorf("skipped rows: got %d and %d, want 2 and 3", skipped[0].Line, skipped[1].Line)
	}
}

func TestSQLReadAllQueryError(t *testing.T) {
	s, mock := newMockSQL(t)
	mock.ExpectQuery("SELECT").WillReturnError(errors.New("connection refused"))

	if _, err := s.ReadAll(); err == nil {
		t.Error("expected error")
	}
}

func TestMySQLDSNForcesParseTime(t *testing.T) {
	for _, dsn := range []string{
		"aeration:secret@tcp(db:3306)/landfill",
		"aeration:secret@tcp(db:3306)/landfill?parseTime=false&loc=UTC",
	} {
		got, err := mysqlDSN(dsn)
		if err != nil {
			t.Fatalf("mysqlDSN(%q): %v", dsn, err)
		}
		cfg, err := mysql.ParseDSN(got)
		if err != nil {
			t.Fatalf("reparse %q: %v", got, err)
		}
		if !cfg.ParseTime {
			t.Errorf("%q: parseTime not set in %q", dsn, got)
		}
		if cfg.Loc != time.Local {
			t.Errorf("%q: loc = %v, want Local", dsn, cfg.Loc)
		}
		if cfg.Addr != "db:3306" || cfg.DBName != "landfill" || cfg.User != "aeration" {
			t.Errorf("%q: connection settings lost: %+v", dsn, cfg)
		}
	}
}

func TestMySQLDSNInvalid(t *testing.T) {
	if _, err := mysqlDSN("not a dsn"); err == nil {
		t.Error("expected error")
	}
}

func TestSQLReadAllTextTimestamps(t *testing.T) {
	s, mock := newMockSQL(t)
	var skipped int
	s.OnSkip = func(*MalformedRowError) { skipped++ }

	rows := sqlmock.NewRows(sqlColumns).
		AddRow([]byte("2026-01-01 12:00:00"), 41.0, 9.0, 45.0, 7.0, "ON").
		AddRow([]byte("2026-01-01 12:00:02"), 33.0, 16.0, 70.0, 6.2, "OFF").
		AddRow([]byte("0000-00-00 00:00:00"), 33.0, 16.0, 70.0, 6.2, "OFF")
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	got, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 2 || skipped != 1 {
		t.Fatalf("expected 2 records and 1 skip, got %d and %d", len(got), skipped)
	}
	want := time.Date(2026, 1, 1, 12, 0, 2, 0, time.Local)
	if !got[1].Timestamp.Equal(want) {
		t.Errorf("timestamp: got %v, want %v", got[1].Timestamp, want)
	}
}

func TestSQLReadAllSkipsNonFiniteValues(t *testing.T) {
	s, mock := newMockSQL(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	rows := sqlmock.NewRows(sqlColumns).
		AddRow(t0, 41.5, 9.2, 48.0, 7.1, "ON").
		AddRow(t0, math.NaN(), 9.2, 48.0, 7.1, "ON").
		AddRow(t0, 41.5, math.Inf(-1), 48.0, 7.1, "ON")
	mock.ExpectQuery("SELECT").WillReturnRows(rows)

	got, err := s.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 record, got %d", len(got))
	}
}
