package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nikhilbhutani/whisperapi/internal/config"
)

func TestLocalStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewLocalStorage(t.TempDir())

	if err := s.Upload(ctx, "audio", "jobs/abc.wav", strings.NewReader("RIFF"), "audio/wav"); err != nil {
		t.Fatalf("Upload() error: %v", err)
	}

	rc, err := s.Download(ctx, "audio", "jobs/abc.wav")
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "RIFF" {
		t.Errorf("expected RIFF, got %q", data)
	}

	if err := s.Delete(ctx, "audio", "jobs/abc.wav"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Download(ctx, "audio", "jobs/abc.wav"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "audio", "jobs/abc.wav"); err != nil {
		t.Errorf("deleting a missing object should succeed, got %v", err)
	}
}

func TestLocalStorage_PathsStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	s := NewLocalStorage(root)

	full, err := s.objectPath("audio", "../../etc/passwd")
	if err != nil {
		t.Fatalf("objectPath() error: %v", err)
	}
	if !strings.HasPrefix(full, root) {
		t.Errorf("path escaped root: %s", full)
	}

	for _, bucket := range []string{"", "a/b"} {
		if _, err := s.objectPath(bucket, "x.wav"); err == nil {
			t.Errorf("expected error for bucket %q", bucket)
		}
	}
}

func TestSupabaseStorage(t *testing.T) {
	objects := map[string]string{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer service-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/storage/v1/object/")
		switch r.Method {
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			objects[key] = string(body)
			w.WriteHeader(http.StatusOK)
		case http.MethodGet:
			v, ok := objects[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			io.WriteString(w, v)
		case http.MethodDelete:
			delete(objects, key)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	s := NewSupabaseStorage(srv.URL+"/", "service-key")

	if err := s.Upload(ctx, "audio", "jobs/1.mp3", strings.NewReader("ID3"), ""); err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if objects["audio/jobs/1.mp3"] != "ID3" {
		t.Fatalf("unexpected stored objects: %v", objects)
	}

	rc, err := s.Download(ctx, "audio", "jobs/1.mp3")
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "ID3" {
		t.Errorf("expected ID3, got %q", data)
	}

	if err := s.Delete(ctx, "audio", "jobs/1.mp3"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := s.Download(ctx, "audio", "jobs/1.mp3"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	bad := NewSupabaseStorage(srv.URL, "wrong")
	if err := bad.Upload(ctx, "audio", "x", strings.NewReader("x"), ""); err == nil {
		t.Error("expected upload error with wrong key")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		backend string
		wantErr bool
	}{
		{"", false},
		{"local", false},
		{"supabase", false},
		{"s3", true},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			_, err := New(config.StorageConfig{Backend: tt.backend, LocalDir: t.TempDir(), SupabaseURL: "http://x", SupabaseKey: "k"})
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q) error = %v, wantErr %v", tt.backend, err, tt.wantErr)
			}
		})
	}
}
