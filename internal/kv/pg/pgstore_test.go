package pg

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestGetPresent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select value from kv_entries").
		WithArgs("memberships").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`[]`)))

	s := NewWithDB(db)
	value, ok, err := s.Get(context.Background(), "memberships")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected key to be present")
	}
	if string(value) != "[]" {
		t.Fatalf("unexpected value: %q", value)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetAbsent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select value from kv_entries").
		WithArgs("activeTickets").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))

	s := NewWithDB(db)
	_, ok, err := s.Get(context.Background(), "activeTickets")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected key to be absent")
	}
}

func TestSetUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into kv_entries").
		WithArgs("claimedTickets", []byte(`{"c1":"u1"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	s := NewWithDB(db)
	if err := s.Set(context.Background(), "claimedTickets", []byte(`{"c1":"u1"}`)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDelete(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("delete from kv_entries").
		WithArgs("memberships").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := NewWithDB(db)
	if err := s.Delete(context.Background(), "memberships"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}
