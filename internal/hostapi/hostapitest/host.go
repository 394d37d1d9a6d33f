// Package hostapitest provides an in-process fake of the host HTTP API.
package hostapitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Call is one recorded request.
type Call struct {
	Method string // "namespace.name"
	HTTP   string
	Token  string
	Query  map[string]string
	Body   map[string]any
}

// Host is a fake host. Responses for value-returning methods are set with
// Respond; every other call answers with null data.
type Host struct {
	*httptest.Server

	Token string

	mu        sync.Mutex
	calls     []Call
	responses map[string]any
	failing   map[string]bool
	infoCalls int
}

// New starts a fake host handing out token.
func New(token string) *Host {
	h := &Host{
		Token:     token,
		responses: make(map[string]any),
		failing:   make(map[string]bool),
	}

	r := chi.NewRouter()
	r.Get("/api/application/info", func(w http.ResponseWriter, _ *http.Request) {
		h.mu.Lock()
		h.infoCalls++
		h.mu.Unlock()
		writeData(w, map[string]any{
			"version": "4.0.0",
			"preferences": map[string]any{
				"developer": map[string]any{"apiToken": h.Token},
			},
		})
	})
	r.HandleFunc("/api/{ns}/{method}", h.handle)

	h.Server = httptest.NewServer(r)
	return h
}

func (h *Host) handle(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "ns") + "." + chi.URLParam(r, "method")

	c := Call{
		Method: key,
		HTTP:   r.Method,
		Token:  r.URL.Query().Get("token"),
		Query:  make(map[string]string),
	}
	for k, v := range r.URL.Query() {
		if k != "token" && len(v) > 0 {
			c.Query[k] = v[0]
		}
	}
	if r.Method == http.MethodPost {
		json.NewDecoder(r.Body).Decode(&c.Body)
	}

	h.mu.Lock()
	h.calls = append(h.calls, c)
	resp := h.responses[key]
	fail := h.failing[key]
	h.mu.Unlock()

	if c.Token != h.Token {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "bad token"})
		return
	}
	if fail {
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "failed"})
		return
	}
	writeData(w, resp)
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "success", "data": data})
}

// Respond sets the data returned for method ("namespace.name").
func (h *Host) Respond(method string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.responses[method] = data
}

// Fail makes method answer with an error envelope.
func (h *Host) Fail(method string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failing[method] = true
}

// Calls returns the recorded calls, excluding application info lookups.
func (h *Host) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Call(nil), h.calls...)
}

// CallsTo returns the recorded calls of one method.
func (h *Host) CallsTo(method string) []Call {
	var out []Call
	for _, c := range h.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// InfoCalls returns how many times application info was requested.
func (h *Host) InfoCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.infoCalls
}
