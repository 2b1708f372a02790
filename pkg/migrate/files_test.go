package migrate

import (
	"os"
	"strings"
	"testing"
	"testing/fstest"
	"time"
)

func TestValidateRejectsBadFilename(t *testing.T) {
	fsys := fstest.MapFS{"add_things.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")}}
	err := Validate(fsys)
	if err == nil || !strings.Contains(err.Error(), "invalid migration filename") {
		t.Fatalf("expected filename error, got %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	fsys := fstest.MapFS{
		"20260101000000_add_things.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		"20260101000000_other.sql":      {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		"README.md":                     {Data: []byte("notes")},
	}
	err := Validate(fsys)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"missing \"-- +goose Down\"", "version 20260101000000 used by"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestCreateWritesValidMigration(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 1, 9, 5, 0, 0, time.UTC)
	path, err := Create(dir, "Add Cart Holds!", at)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasSuffix(path, "20260301090500_add_cart_holds.sql") {
		t.Fatalf("unexpected path %s", path)
	}
	if err := Validate(os.DirFS(dir)); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
	if _, err := Create(dir, "add cart holds", at); err == nil {
		t.Fatal("expected an error when the file already exists")
	}
	if _, err := Create(dir, "!!!", at); err == nil {
		t.Fatal("expected an error for an empty slug")
	}
}

func TestTransient(t *testing.T) {
	if !transient(errString("dial tcp 127.0.0.1:5432: connect: connection refused")) {
		t.Fatal("connection refused should be transient")
	}
	if transient(errString(`ERROR: relation "orders" already exists`)) {
		t.Fatal("sql errors are not transient")
	}
}

type errString string

func (e errString) Error() string { return string(e) }
