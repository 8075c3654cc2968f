package sourcedb

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/yungbote/neurobridge-graphload/internal/pkg/errors"
)

func TestOpen_SQLite(t *testing.T) {
	db, err := Open(context.Background(), Config{Driver: "sqlite3", DSN: "file::memory:", Silent: true}, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer Close(db)

	var n int
	if err := db.Raw("SELECT 1").Scan(&n).Error; err != nil {
		t.Fatalf("query: %v", err)
	}
	if n != 1 {
		t.Fatalf("select: want=1 got=%d", n)
	}
}

func TestOpen_ConnectionErrors(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"empty dsn", Config{Driver: DriverSQLite}},
		{"unknown driver", Config{Driver: "oracle", DSN: "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Open(context.Background(), tc.cfg, nil)
			var ce *pkgerrors.ConnectionError
			if !errors.As(err, &ce) {
				t.Fatalf("want *ConnectionError, got %v", err)
			}
			if ce.Target != "source" {
				t.Fatalf("target: want=source got=%q", ce.Target)
			}
		})
	}
}

func TestClose_Nil(t *testing.T) {
	if err := Close(nil); err != nil {
		t.Fatalf("Close(nil): %v", err)
	}
}
