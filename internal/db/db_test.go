package db

import (
	"strings"
	"testing"

	"github.com/fiberline/opsbot/internal/models"
)

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "adds parseTime",
			dsn:  "bot:secret@tcp(10.0.0.5:3306)/opsbot",
			want: "parseTime=true",
		},
		{
			name: "keeps existing params",
			dsn:  "bot@tcp(db.internal:3307)/opsbot?charset=utf8mb4",
			want: "charset=utf8mb4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MySQLDSN(tt.dsn)
			if err != nil {
				t.Fatalf("MySQLDSN() error: %v", err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("MySQLDSN() = %q, want to contain %q", got, tt.want)
			}
			if !strings.Contains(got, "parseTime=true") {
				t.Errorf("MySQLDSN() = %q, missing parseTime=true", got)
			}
		})
	}
}

func TestMySQLDSN_Invalid(t *testing.T) {
	_, err := MySQLDSN("not a dsn")
	if err == nil {
		t.Fatal("expected error for invalid dsn")
	}
	if !strings.Contains(err.Error(), "db: parse mysql dsn") {
		t.Errorf("error = %q, want db prefix", err.Error())
	}
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open("postgres", "host=x")
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
	if !strings.Contains(err.Error(), `unsupported driver "postgres"`) {
		t.Errorf("error = %q", err.Error())
	}
}

func TestOpen_SQLiteAndMigrate(t *testing.T) {
	gdb, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer Close(gdb)

	if err := AutoMigrate(gdb); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	for _, m := range AllModels() {
		if !gdb.Migrator().HasTable(m) {
			t.Errorf("table for %T not created", m)
		}
	}

	row := models.ChatSession{Key: "console:local:op", Step: "IDLE", Data: "{}"}
	if err := gdb.Create(&row).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	var got models.ChatSession
	if err := gdb.First(&got, "conversation_key = ?", "console:local:op").Error; err != nil {
		t.Fatalf("first: %v", err)
	}
	if got.Data != "{}" {
		t.Errorf("Data = %q, want %q", got.Data, "{}")
	}
}

func TestAutoMigrate_Idempotent(t *testing.T) {
	gdb, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer Close(gdb)

	for i := 0; i < 2; i++ {
		if err := AutoMigrate(gdb); err != nil {
			t.Fatalf("AutoMigrate run %d: %v", i+1, err)
		}
	}
}
