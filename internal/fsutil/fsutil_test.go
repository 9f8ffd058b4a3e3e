package fsutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestNewRootFs(t *testing.T) {
	parent := t.TempDir()
	root := filepath.Join(parent, "wwwroot")
	if err := os.MkdirAll(root, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "app.wasm"), []byte("wasm"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("secret"), 0644); err != nil {
		t.Fatal(err)
	}

	fsys := NewRootFs(root)

	t.Run("reads inside root", func(t *testing.T) {
		data, err := afero.ReadFile(fsys, "/app.wasm")
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if string(data) != "wasm" {
			t.Errorf("ReadFile() = %q, want %q", data, "wasm")
		}
	})

	t.Run("cannot escape root", func(t *testing.T) {
		if _, err := afero.ReadFile(fsys, "../secret.txt"); err == nil {
			t.Error("ReadFile() should fail outside the root")
		}
	})

	t.Run("read only", func(t *testing.T) {
		if err := afero.WriteFile(fsys, "/new.txt", []byte("x"), 0644); err == nil {
			t.Error("WriteFile() should fail on a read-only root")
		}
	})
}

func TestFingerprint(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/www/app.wasm", []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, "/www/css/site.css", []byte("body{}"), 0644); err != nil {
		t.Fatal(err)
	}

	hash1, err := Fingerprint(fsys, "/www")
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	if len(hash1) != 64 {
		t.Errorf("Fingerprint() returned hash of length %d, want 64", len(hash1))
	}

	hash2, _ := Fingerprint(fsys, "/www")
	if hash1 != hash2 {
		t.Errorf("Fingerprint() not deterministic: %s != %s", hash1, hash2)
	}

	if err := afero.WriteFile(fsys, "/www/app.wasm", []byte("version 2"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := fsys.Chtimes("/www/app.wasm", time.Now(), time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	hash3, _ := Fingerprint(fsys, "/www")
	if hash3 == hash1 {
		t.Error("Fingerprint() should change when a file changes")
	}
}

func TestFingerprint_MissingRoot(t *testing.T) {
	fsys := afero.NewMemMapFs()

	got, err := Fingerprint(fsys, "/missing")
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	empty, _ := Fingerprint(fsys)
	if got != empty {
		t.Errorf("missing root hash = %s, want empty hash %s", got, empty)
	}
}

func TestFingerprint_MultipleRoots(t *testing.T) {
	fsys := afero.NewMemMapFs()
	if err := afero.WriteFile(fsys, "/index.html", []byte("<html></html>"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fsys, "/www/app.wasm", []byte("v1"), 0644); err != nil {
		t.Fatal(err)
	}

	both, err := Fingerprint(fsys, "/www", "/index.html")
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	onlyDir, _ := Fingerprint(fsys, "/www")
	if both == onlyDir {
		t.Error("Fingerprint() should include every root")
	}
}
