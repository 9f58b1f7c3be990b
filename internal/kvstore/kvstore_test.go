package kvstore_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sweeney/heater-controller/internal/kvstore"
	"github.com/sweeney/heater-controller/internal/schedule"
)

var (
	_ schedule.Store = (*kvstore.Store)(nil)
	_ schedule.Store = (*kvstore.Memory)(nil)
)

type utcTime struct{}

func (utcTime) Match(v driver.Value) bool {
	tm, ok := v.(time.Time)
	return ok && tm.Location() == time.UTC
}

func TestSetUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv")).
		WithArgs("ts", "20,20", utcTime{}).
		WillReturnResult(sqlmock.NewResult(1, 1))

	store := kvstore.New(db)
	if err := store.Set(context.Background(), "ts", "20,20"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSetError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO kv")).
		WillReturnError(errors.New("disk full"))

	if err := kvstore.New(db).Set(context.Background(), "ts", "x"); err == nil {
		t.Fatal("expected error")
	}
}

func TestGetFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM kv")).
		WithArgs("ts").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow("18,19"))

	v, found, err := kvstore.New(db).Get(context.Background(), "ts")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !found || v != "18,19" {
		t.Errorf("got (%q, %v), want (18,19, true)", v, found)
	}
}

func TestGetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT value FROM kv")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	_, found, err := kvstore.New(db).Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if found {
		t.Error("expected found=false")
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heater.db")
	store, err := kvstore.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	ctx := context.Background()
	if err := store.Set(ctx, "ts", "19,19,19"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := store.Set(ctx, "ts", "21,21,21"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	store.Close()

	// Survives reopening.
	store, err = kvstore.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	v, found, err := store.Get(ctx, "ts")
	if err != nil || !found {
		t.Fatalf("Get: found=%v err=%v", found, err)
	}
	if v != "21,21,21" {
		t.Errorf("got %q, want 21,21,21", v)
	}
}

func TestMemory(t *testing.T) {
	m := kvstore.NewMemory()
	ctx := context.Background()

	if _, found, _ := m.Get(ctx, "ts"); found {
		t.Error("expected empty store")
	}
	m.Set(ctx, "ts", "20")
	if v, found, _ := m.Get(ctx, "ts"); !found || v != "20" {
		t.Errorf("got (%q, %v)", v, found)
	}

	m.SetError = errors.New("read-only")
	if err := m.Set(ctx, "ts", "21"); err == nil {
		t.Error("expected SetError")
	}
	if v, _, _ := m.Get(ctx, "ts"); v != "20" {
		t.Errorf("failed Set must not store, got %q", v)
	}
}
