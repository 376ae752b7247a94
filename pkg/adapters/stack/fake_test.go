package stack_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

type fakeStack struct {
	status     string
	template   map[string]any
	parameters map[string]any
}

// fakeOrchestrator is an in-memory orchestration service. Stacks report an
// IN_PROGRESS state once after every change, then settle.
type fakeOrchestrator struct {
	mu         sync.Mutex
	token      string
	stacks     map[string]*fakeStack
	requests   []string
	failDelete bool
	settleAs   string
}

func newFakeOrchestrator(t *testing.T, token string) (*fakeOrchestrator, *httptest.Server) {
	t.Helper()
	f := &fakeOrchestrator{token: token, stacks: make(map[string]*fakeStack)}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if req.Header.Get("X-Auth-Token") != f.token {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			f.mu.Lock()
			f.requests = append(f.requests, req.Method+" "+req.URL.Path)
			f.mu.Unlock()
			next.ServeHTTP(w, req)
		})
	})
	r.Route("/{tenant}/stacks", func(r chi.Router) {
		r.Post("/", f.create)
		r.Get("/{name}", f.get)
		r.Put("/{name}", f.update)
		r.Delete("/{name}", f.delete)
		r.Get("/{name}/template", f.template)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeOrchestrator) calls(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, r := range f.requests {
		if strings.HasPrefix(r, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeOrchestrator) stack(name string) *fakeStack {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stacks[name]
}

func (f *fakeOrchestrator) settled(action string) string {
	if f.settleAs != "" {
		return f.settleAs
	}
	return action + "_COMPLETE"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeOrchestrator) create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name       string         `json:"stack_name"`
		Template   map[string]any `json:"template"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.stacks[body.Name] = &fakeStack{status: "CREATE_IN_PROGRESS", template: body.Template, parameters: body.Parameters}
	f.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"stack": map[string]any{"id": "id-" + body.Name}})
}

func (f *fakeOrchestrator) update(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Template   map[string]any `json:"template"`
		Parameters map[string]any `json:"parameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stacks[chi.URLParam(r, "name")]
	if !ok {
		http.Error(w, "no such stack", http.StatusNotFound)
		return
	}
	s.status = "UPDATE_IN_PROGRESS"
	s.template = body.Template
	s.parameters = body.Parameters
	w.WriteHeader(http.StatusAccepted)
}

func (f *fakeOrchestrator) delete(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete {
		http.Error(w, "boom", http.StatusInternalServerError)
		return
	}
	s, ok := f.stacks[chi.URLParam(r, "name")]
	if !ok {
		http.Error(w, "no such stack", http.StatusNotFound)
		return
	}
	s.status = "DELETE_IN_PROGRESS"
	w.WriteHeader(http.StatusNoContent)
}

func (f *fakeOrchestrator) get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	f.mu.Lock()
	s, ok := f.stacks[name]
	if !ok {
		f.mu.Unlock()
		http.Error(w, "no such stack", http.StatusNotFound)
		return
	}
	resp := map[string]any{
		"id":           "id-" + name,
		"stack_name":   name,
		"stack_status": s.status,
		"parameters":   s.parameters,
	}
	if action, found := strings.CutSuffix(s.status, "_IN_PROGRESS"); found {
		if action == "DELETE" && f.settleAs == "" {
			delete(f.stacks, name)
		} else {
			s.status = f.settled(action)
		}
	}
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"stack": resp})
}

func (f *fakeOrchestrator) template(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	s, ok := f.stacks[chi.URLParam(r, "name")]
	f.mu.Unlock()
	if !ok {
		http.Error(w, "no such stack", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, s.template)
}
