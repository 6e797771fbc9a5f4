package httpapi

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ehrlich-b/gatekeeper/internal/batch"
	"github.com/ehrlich-b/gatekeeper/internal/containerrt/fakert"
	"github.com/ehrlich-b/gatekeeper/internal/gwconfig"
	"github.com/ehrlich-b/gatekeeper/internal/registry"
)

func scriptedWorker(done bool) fakert.WorkerFunc {
	return func(cmd map[string]any) (map[string]any, error) {
		switch cmd["cmd"] {
		case "init":
			return map[string]any{
				"status":              "ok",
				"observation":         "you are in a room",
				"admissible_commands": []any{"go north", "look"},
			}, nil
		case "step":
			return map[string]any{
				"status":              "ok",
				"observation":         "you moved",
				"score":               1.0,
				"done":                done,
				"won":                 done,
				"admissible_commands": []any{"look"},
			}, nil
		}
		return map[string]any{"status": "error", "message": "unexpected cmd"}, nil
	}
}

func newTestServer(t *testing.T, maxSessions int, worker fakert.WorkerFunc) (*Server, *registry.Registry) {
	t.Helper()
	cfg := gwconfig.Default()
	cfg.MaxSessions = maxSessions
	cfg.DataHostPath = "/host/data"
	cfg.DataContainerPath = "/data"
	reg := registry.New(cfg, fakert.New(worker), []string{"/host/data/trial1/game.tw-pddl"}, rand.New(rand.NewSource(1)))
	coordinator := batch.New(0)
	srv := New(reg, coordinator, []string{"/host/data/trial1/game.tw-pddl"})
	return srv, reg
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestScenario1_CreateStepDeleteSingle(t *testing.T) {
	srv, _ := newTestServer(t, 4, scriptedWorker(false))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeJSON(t, rec)
	if body["status"] != "active" {
		t.Fatalf("expected active status, got %v", body["status"])
	}
	if body["observation"] == "" {
		t.Fatal("expected non-empty observation")
	}
	id, _ := body["session_id"].(string)
	if id == "" {
		t.Fatal("expected session_id")
	}

	stepBody, _ := json.Marshal(map[string]string{"action": "go north"})
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/step", bytes.NewReader(stepBody)))
	if rec.Code != http.StatusOK {
		t.Fatalf("step: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	stepResp := decodeJSON(t, rec)
	if stepResp["observation"] != "you moved" {
		t.Fatalf("expected updated observation, got %v", stepResp["observation"])
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/sessions/"+id, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+id, nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete: expected 404, got %d", rec.Code)
	}
}

func TestScenario2_CapacityExhaustion(t *testing.T) {
	srv, _ := newTestServer(t, 2, scriptedWorker(false))

	var wg sync.WaitGroup
	codes := make([]int, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", nil))
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, c := range codes {
		switch c {
		case http.StatusOK:
			ok++
		case http.StatusServiceUnavailable:
			rejected++
		}
	}
	if ok != 2 || rejected != 1 {
		t.Fatalf("expected 2 ok + 1 rejected, got ok=%d rejected=%d (codes=%v)", ok, rejected, codes)
	}
}

func TestScenario3_TerminalSessionRejectsStep(t *testing.T) {
	srv, _ := newTestServer(t, 1, scriptedWorker(true))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	id := decodeJSON(t, rec)["session_id"].(string)

	stepBody, _ := json.Marshal(map[string]string{"action": "go north"})
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/step", bytes.NewReader(stepBody)))
	if rec.Code != http.StatusOK {
		t.Fatalf("first step should succeed and mark done, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/step", bytes.NewReader(stepBody)))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on step after done, got %d: %s", rec.Code, rec.Body.String())
	}
	errBody := decodeJSON(t, rec)
	if errBody["error_code"] != "session-already-done" {
		t.Fatalf("expected session-already-done, got %v", errBody["error_code"])
	}
}

func TestHealthAndTaskTypesAndGames(t *testing.T) {
	srv, _ := newTestServer(t, 4, scriptedWorker(false))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	health := decodeJSON(t, rec)
	if health["max_sessions"].(float64) != 4 {
		t.Fatalf("expected max_sessions=4, got %v", health["max_sessions"])
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/task-types", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("task-types: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/games", nil))
	games := decodeJSON(t, rec)
	if games["total"].(float64) != 1 {
		t.Fatalf("expected 1 discovered game, got %v", games["total"])
	}
}

func TestGetUnknownSession_Returns404(t *testing.T) {
	srv, _ := newTestServer(t, 1, scriptedWorker(false))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/does-not-exist", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
