package supervisor

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/desktop-core/internal/domain"
)

func TestLogRingEvictsOldest(t *testing.T) {
	r := newLogRing(3)
	r.push("a")
	r.push("b")
	r.push("c")
	r.push("d")

	got := r.tail(10)
	want := []string{"b", "c", "d"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("tail = %v, want %v", got, want)
	}
}

func TestLogRingTailLimitsCount(t *testing.T) {
	r := newLogRing(200)
	for i := 0; i < 50; i++ {
		r.push(strconv.Itoa(i))
	}
	got := r.tail(5)
	if strings.Join(got, ",") != "45,46,47,48,49" {
		t.Fatalf("tail(5) = %v", got)
	}
}

func TestComposeWithTail(t *testing.T) {
	msg := composeWithTail("boom", nil)
	if msg != "boom" {
		t.Fatalf("expected no tail appended when empty, got %q", msg)
	}
	msg = composeWithTail("boom", []string{"l1", "l2"})
	if !strings.Contains(msg, "boom") || !strings.Contains(msg, "l1") || !strings.Contains(msg, "l2") {
		t.Fatalf("expected composed message to contain reason and tail, got %q", msg)
	}
}

func TestIsPortBindable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	if isPortBindable("127.0.0.1", port) {
		t.Fatal("expected bound port to be reported unavailable")
	}

	ln2, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen: %v", err)
	}
	freePort := ln2.Addr().(*net.TCPAddr).Port
	ln2.Close()

	if !isPortBindable("127.0.0.1", freePort) {
		t.Fatal("expected a released port to be reported available")
	}
}

func TestDiscoverRepoRoot(t *testing.T) {
	root := t.TempDir()
	marker := filepath.Join(root, "product_validator_search")
	if err := os.Mkdir(marker, 0o755); err != nil {
		t.Fatalf("Mkdir marker: %v", err)
	}
	nested := filepath.Join(root, "desktop", "src-tauri")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll nested: %v", err)
	}

	got := DiscoverRepoRoot(nested, "product_validator_search", 6)
	if got != root {
		t.Fatalf("DiscoverRepoRoot = %q, want %q", got, root)
	}

	lonely := t.TempDir()
	got = DiscoverRepoRoot(lonely, "product_validator_search", 6)
	if got != lonely {
		t.Fatalf("expected fallback to start dir, got %q", got)
	}
}

// fakeBackend spins up an httptest server implementing /health,
// /list-apps and the session endpoints well enough to drive Start().
func fakeBackend(t *testing.T, healthy func() bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if healthy == nil || healthy() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/list-apps", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`["reports","product_validator_search"]`))
	})
	return httptest.NewServer(mux)
}

func TestCheckHealthAgainstFakeBackend(t *testing.T) {
	srv := fakeBackend(t, func() bool { return true })
	defer srv.Close()

	sup := New(t.TempDir(), false)
	if !sup.checkHealth(context.Background(), srv.URL) {
		t.Fatal("expected checkHealth to report healthy")
	}

	unhealthy := fakeBackend(t, func() bool { return false })
	defer unhealthy.Close()
	if sup.checkHealth(context.Background(), unhealthy.URL) {
		t.Fatal("expected checkHealth to report unhealthy on 503")
	}
}

func TestStartFailsFastWhenLauncherMissing(t *testing.T) {
	sup := NewWithLauncher(t.TempDir(), false, []string{"definitely-not-a-real-launcher-binary"})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := sup.Start(ctx, domain.BackendStartConfig{}, domain.KeyEnv{})
	if err == nil {
		t.Fatal("expected an error when the launcher binary is missing")
	}
	if !strings.Contains(err.Error(), "not on PATH") {
		t.Fatalf("expected a launcher-missing error, got %v", err)
	}
}
