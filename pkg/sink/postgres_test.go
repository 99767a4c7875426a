package sink

import (
	"context"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/courtside-labs/crm-sync/pkg/common/logger"
	"github.com/courtside-labs/crm-sync/pkg/common/models"
)

func TestMain(m *testing.M) {
	logger.Init()
	os.Exit(m.Run())
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:               glogger.Default.LogMode(glogger.Silent),
		DisableAutomaticPing: true,
	})
	if err != nil {
		t.Fatalf("open gorm: %v", err)
	}
	return db, mock
}

func bangkok(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Bangkok")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	return loc
}

func TestPostgresLoadDeletesThenInserts(t *testing.T) {
	db, mock := newMockDB(t)
	loc := bangkok(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "customers"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "customers"`)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(`INSERT INTO "customers"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))
	mock.ExpectCommit()

	records := []models.CanonicalCustomerRecord{
		{CustomerName: "Alice", UpdateTime: time.Now().In(loc)},
		{CustomerName: "Bob", UpdateTime: time.Now().In(loc)},
	}

	batchID, err := NewPostgresSink(db, loc).Load(context.Background(), records)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batchID == "" {
		t.Fatal("expected batch id")
	}
	if _, err := time.ParseInLocation("20060102_150405", batchID, loc); err != nil {
		t.Fatalf("batch id %q not in expected format: %v", batchID, err)
	}
	for _, r := range records {
		if r.BatchID != batchID {
			t.Fatalf("record not stamped with batch id: %+v", r)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresLoadSkipsDeleteWhenEmpty(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "customers"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`INSERT INTO "customers"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()

	records := []models.CanonicalCustomerRecord{{CustomerName: "Alice"}}
	if _, err := NewPostgresSink(db, bangkok(t)).Load(context.Background(), records); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("delete must be skipped on an empty store: %v", err)
	}
}

func TestPostgresLoadWrapsFailures(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "customers"`)).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	_, err := NewPostgresSink(db, bangkok(t)).Load(context.Background(), []models.CanonicalCustomerRecord{{CustomerName: "Alice"}})
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsSinkWriteError(err) {
		t.Fatalf("expected SinkWriteError, got %v", err)
	}
}
