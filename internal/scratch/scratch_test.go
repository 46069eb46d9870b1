package scratch

import (
	"os"
	"testing"

	"github.com/google/uuid"
)

func TestScopeLifecycle(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	scope, err := mgr.OpenScope(uuid.NewString())
	if err != nil {
		t.Fatalf("open scope: %v", err)
	}
	if _, err := scope.WriteFile("source.pdf", []byte("%PDF-1.4")); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := os.Stat(scope.File("source.pdf")); err != nil {
		t.Fatalf("expected file inside scope: %v", err)
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(scope.Path()); !os.IsNotExist(err) {
		t.Fatalf("scope directory should be gone, stat err = %v", err)
	}
}

func TestScopeCloseIdempotent(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	scope, err := mgr.OpenScope("job-1")
	if err != nil {
		t.Fatalf("open scope: %v", err)
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := scope.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
}

func TestScopesDoNotCollide(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	a, err := mgr.OpenScope(uuid.NewString())
	if err != nil {
		t.Fatalf("open scope a: %v", err)
	}
	defer a.Close()
	b, err := mgr.OpenScope(uuid.NewString())
	if err != nil {
		t.Fatalf("open scope b: %v", err)
	}
	defer b.Close()
	if a.Path() == b.Path() {
		t.Fatalf("scopes share a path: %s", a.Path())
	}
	if _, err := a.WriteFile("page-1.png", []byte("a")); err != nil {
		t.Fatalf("write a: %v", err)
	}
	// Closing one scope must not touch the other.
	if err := a.Close(); err != nil {
		t.Fatalf("close a: %v", err)
	}
	if _, err := os.Stat(b.Path()); err != nil {
		t.Fatalf("scope b should survive a's close: %v", err)
	}
}

func TestOpenScopeRejectsEmptyJobID(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := mgr.OpenScope(""); err == nil {
		t.Fatalf("expected error for empty job id")
	}
}
