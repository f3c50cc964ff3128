package sqlite

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"testing"
	"time"

	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/fieldcrypt"
	"github.com/ericfisherdev/civicrecords/internal/adapter/driven/recordmap"
	"github.com/ericfisherdev/civicrecords/internal/domain/model"
)

// setupTestDB creates a named shared in-memory SQLite database for testing.
// Writer and reader connections share the same in-memory database via cache=shared.
// A unique name derived from t.Name() ensures isolation between parallel tests.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Percent-encode the test name so it's a safe SQLite URI filename component
	// and cannot be misinterpreted as query parameters in the "file:%s?..." DSN.
	safeName := url.PathEscape(t.Name())
	// WAL mode is not applicable to in-memory databases; omit journal_mode pragma.
	dsn := fmt.Sprintf(
		"file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=cache_size(-64000)",
		safeName,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("create test db writer: %v", err)
	}
	writer.SetMaxOpenConns(1)
	if err := writer.PingContext(context.Background()); err != nil {
		_ = writer.Close()
		t.Fatalf("ping test db writer: %v", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		t.Fatalf("create test db reader: %v", err)
	}
	reader.SetMaxOpenConns(4)
	if err := reader.PingContext(context.Background()); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		t.Fatalf("ping test db reader: %v", err)
	}

	db := &DB{Writer: writer, Reader: reader, path: dsn}

	if err := RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		t.Fatalf("run migrations: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

// testMapper returns a mapper over a fixed single-key keyring.
func testMapper(t *testing.T) *recordmap.Mapper {
	t.Helper()
	ring, err := fieldcrypt.NewKeyring("k1", map[string][]byte{"k1": bytes.Repeat([]byte{0x5a}, fieldcrypt.KeySize)}, nil)
	if err != nil {
		t.Fatalf("create keyring: %v", err)
	}
	return recordmap.New(fieldcrypt.New(ring))
}

// rotatedMapper seals under k2 while still reading tokens written by testMapper.
func rotatedMapper(t *testing.T) *recordmap.Mapper {
	t.Helper()
	ring, err := fieldcrypt.NewKeyring("k2", map[string][]byte{
		"k1": bytes.Repeat([]byte{0x5a}, fieldcrypt.KeySize),
		"k2": bytes.Repeat([]byte{0xa5}, fieldcrypt.KeySize),
	}, nil)
	if err != nil {
		t.Fatalf("create keyring: %v", err)
	}
	return recordmap.New(fieldcrypt.New(ring))
}

func makeResident(first, last string) model.Resident {
	return model.Resident{
		FirstName:   first,
		MiddleName:  "Lopez",
		LastName:    last,
		Age:         40,
		Sex:         "F",
		CivilStatus: model.CivilStatusSingle,
		Address:     "Purok 2: Brgy. Bag-ong Lungsod",
		Birthplace:  "Tandag",
		Birthday:    time.Date(1985, time.July, 14, 0, 0, 0, 0, time.UTC),
	}
}
