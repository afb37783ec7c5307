package database

import (
	"context"
	"errors"
	"io/fs"
	"slices"
	"testing"
	"testing/fstest"

	"github.com/nikhilbhutani/whisperapi/internal/config"
)

func TestPending(t *testing.T) {
	tests := []struct {
		name    string
		files   []string
		applied map[string]bool
		want    []string
	}{
		{"fresh database", []string{"002_b.sql", "001_a.sql"}, nil, []string{"001_a.sql", "002_b.sql"}},
		{"partially applied", []string{"001_a.sql", "002_b.sql"}, map[string]bool{"001_a.sql": true}, []string{"002_b.sql"}},
		{"up to date", []string{"001_a.sql"}, map[string]bool{"001_a.sql": true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Pending(tt.files, tt.applied); !slices.Equal(got, tt.want) {
				t.Errorf("Pending() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMigrationGlob(t *testing.T) {
	fsys := fstest.MapFS{
		"001_transcription_logs.sql": {Data: []byte("CREATE TABLE x ();")},
		"README.md":                  {Data: []byte("docs")},
	}
	files, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0] != "001_transcription_logs.sql" {
		t.Errorf("unexpected migration files: %v", files)
	}
}

func TestNewPool_NotConfigured(t *testing.T) {
	if _, err := NewPool(context.Background(), config.DatabaseConfig{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected ErrNotConfigured, got %v", err)
	}
}
