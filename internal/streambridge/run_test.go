package streambridge

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/desktop-core/internal/sessionstore"
)

type fakeBackend struct{ url string }

func (f fakeBackend) BaseURL() string { return f.url }

func newSessionCreateHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"adk-session"}`))
	}
}

func TestRunHappyPathEventOrdering(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/apps/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/sessions") && r.Method == http.MethodPost && !strings.HasSuffix(r.URL.Path, "/events") {
			newSessionCreateHandler()(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/run_sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		frames := []string{
			`data: {"author":"model","content":{"role":"model","parts":[{"text":"Hello "}]}}`,
			`data: {"author":"model","content":{"role":"model","parts":[{"text":"Hello there"}]}}`,
			`data: [DONE]`,
		}
		for _, f := range frames {
			fmt.Fprintf(w, "%s\n\n", f)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	runner := &Runner{Backend: fakeBackend{url: srv.URL}, Client: srv.Client()}

	var events []any
	emit := func(e any) { events = append(events, e) }

	outcome := runner.Run(context.Background(), "req-1", "demo_app", "local", "sess-1", "hi", emit)
	if !outcome.Completed {
		t.Fatalf("expected completed outcome, got %+v", outcome)
	}
	if len(events) < 2 {
		t.Fatalf("expected at least open+done events, got %d", len(events))
	}
	if _, ok := events[0].(StreamOpen); !ok {
		t.Fatalf("first event must be StreamOpen, got %T", events[0])
	}
	if _, ok := events[len(events)-1].(StreamDone); !ok {
		t.Fatalf("last event must be StreamDone, got %T", events[len(events)-1])
	}

	var sawMessage bool
	for _, e := range events {
		if m, ok := e.(StreamMessage); ok && m.Text == "Hello there" {
			sawMessage = true
		}
	}
	if !sawMessage {
		t.Error("expected accumulated model text 'Hello there' to be emitted")
	}
}

func TestRunToolRoundTrip(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/apps/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/sessions") && r.Method == http.MethodPost && !strings.HasSuffix(r.URL.Path, "/events") {
			newSessionCreateHandler()(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/run_sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `data: {"content":{"parts":[{"functionCall":{"name":"search","args":{"q":"golang"}}}]}}`+"\n\n")
		fmt.Fprintf(w, `data: {"content":{"parts":[{"functionResponse":{"name":"search","response":{"hits":3}}}]}}`+"\n\n")
		fmt.Fprintf(w, "data: [DONE]\n\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	runner := &Runner{Backend: fakeBackend{url: srv.URL}, Client: srv.Client()}
	var tools []StreamTool
	emit := func(e any) {
		if tool, ok := e.(StreamTool); ok {
			tools = append(tools, tool)
		}
	}

	outcome := runner.Run(context.Background(), "req-2", "demo_app", "local", "sess-2", "search something", emit)
	if !outcome.Completed {
		t.Fatalf("expected completed outcome, got %+v", outcome)
	}
	if len(tools) != 2 {
		t.Fatalf("expected start+done tool events, got %d", len(tools))
	}
	if tools[0].Phase != "start" || tools[0].Query != "golang" {
		t.Errorf("unexpected start event: %+v", tools[0])
	}
	if tools[1].Phase != "done" {
		t.Errorf("unexpected done event: %+v", tools[1])
	}
}

func TestRunFallsBackWhenSSEUnsupported(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/apps/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/sessions") && r.Method == http.MethodPost && !strings.HasSuffix(r.URL.Path, "/events") {
			newSessionCreateHandler()(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/run_sse", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"events":[{"content":{"role":"model","parts":[{"text":"ok"}]}}]}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	runner := &Runner{Backend: fakeBackend{url: srv.URL}, Client: srv.Client()}
	var events []any
	emit := func(e any) { events = append(events, e) }

	outcome := runner.Run(context.Background(), "req-3", "demo_app", "local", "sess-3", "hi", emit)
	if !outcome.Completed {
		t.Fatalf("expected fallback path to still complete, got %+v", outcome)
	}
	if _, ok := events[len(events)-1].(StreamDone); !ok {
		t.Fatalf("expected stream_done even on fallback path")
	}
}

func TestRunRespectsCancellation(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/apps/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/sessions") && r.Method == http.MethodPost && !strings.HasSuffix(r.URL.Path, "/events") {
			newSessionCreateHandler()(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/run_sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for i := 0; i < 100; i++ {
			select {
			case <-r.Context().Done():
				return
			default:
			}
			fmt.Fprintf(w, `data: {"author":"model","content":{"role":"model","parts":[{"text":"tick"}]}}`+"\n\n")
			if flusher != nil {
				flusher.Flush()
			}
			time.Sleep(5 * time.Millisecond)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	runner := &Runner{Backend: fakeBackend{url: srv.URL}, Client: srv.Client()}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	var events []any
	emit := func(e any) { events = append(events, e) }

	outcome := runner.Run(ctx, "req-4", "demo_app", "local", "sess-4", "hi", emit)
	if outcome.Completed {
		t.Fatal("expected cancellation to surface as a non-completed outcome")
	}
	if _, ok := events[len(events)-1].(StreamDone); !ok {
		t.Fatal("expected stream_done even when cancelled")
	}
}

func TestRunDegradesOnReplayFailure(t *testing.T) {
	dir := t.TempDir()
	store, err := sessionstore.Open(filepath.Join(dir, sessionstore.DefaultDBName))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	sess, err := store.CreateSession(ctx, "demo_app", "local", nil)
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := store.MessageAppend(ctx, sess.ID, "user", "what should I build?", "done"); err != nil {
		t.Fatalf("MessageAppend: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/apps/", func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "/sessions") && r.Method == http.MethodPost {
			newSessionCreateHandler()(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/run_sse", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "data: [DONE]\n\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	runner := &Runner{Backend: fakeBackend{url: srv.URL}, Client: srv.Client(), Store: store}
	var events []any
	emit := func(e any) { events = append(events, e) }

	outcome := runner.Run(context.Background(), "req-5", "demo_app", "local", sess.ID, "go ahead", emit)
	if !outcome.Completed {
		t.Fatalf("a degraded replay must not fail the run, got %+v", outcome)
	}

	var sawReplayInfo bool
	for _, e := range events {
		if tool, ok := e.(StreamTool); ok && tool.Phase == "info" && tool.Name == "context_replay" {
			sawReplayInfo = true
			if !strings.HasPrefix(tool.Detail, "Replay degraded: ") {
				t.Errorf("unexpected detail: %q", tool.Detail)
			}
		}
	}
	if !sawReplayInfo {
		t.Error("expected a context_replay info event when replay fails")
	}
}
