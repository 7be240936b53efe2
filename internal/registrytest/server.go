// Package registrytest provides an in-memory registry server for tests.
package registrytest

import (
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/itsneelabh/eureka/pkg/instance"
)

// Request is one request received by the server
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	RequestID string
	Body      []byte
}

// Server is a minimal Eureka-style registry backed by a map. It serves the
// apps resource under BasePath.
type Server struct {
	*httptest.Server
	BasePath string

	mu       sync.Mutex
	apps     map[string]map[string]*instance.Descriptor
	requests []Request
	forced   map[string]int
	delay    time.Duration
}

// NewServer starts a registry serving under basePath ("/eureka/apps" when empty).
// The server is closed when the test ends.
func NewServer(t testing.TB, basePath string) *Server {
	t.Helper()
	if basePath == "" {
		basePath = "/eureka/apps"
	}
	s := &Server{
		BasePath: basePath,
		apps:     make(map[string]map[string]*instance.Descriptor),
		forced:   make(map[string]int),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// DeadURL returns a URL nothing listens on, so requests fail with connection refused
func DeadURL(t testing.TB) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	_ = l.Close()
	return "http://" + addr
}

// ForceStatus makes every request with the given method answer status.
// A status of 0 removes the override.
func (s *Server) ForceStatus(method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.forced, method)
		return
	}
	s.forced[method] = status
}

// SetDelay delays every response by d
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Seed stores an instance as if it had registered
func (s *Server) Seed(d *instance.Descriptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(d)
}

// Registered reports whether app/id is currently registered
func (s *Server) Registered(app, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.apps[app][id]
	return ok
}

// Instance returns the stored instance for app/id
func (s *Server) Instance(app, id string) (*instance.Descriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.apps[app][id]
	if !ok {
		return nil, false
	}
	return d.Copy(), true
}

// Requests returns the requests received so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many requests with method were received
func (s *Server) Count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.requests {
		if r.Method == method {
			n++
		}
	}
	return n
}

// AppsURL returns the full URL of the apps resource
func (s *Server) AppsURL() string {
	return s.URL + s.BasePath
}

func (s *Server) store(d *instance.Descriptor) {
	if s.apps[d.App] == nil {
		s.apps[d.App] = make(map[string]*instance.Descriptor)
	}
	s.apps[d.App][d.InstanceID] = d.Copy()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method:    r.Method,
		Path:      r.URL.Path,
		Query:     r.URL.Query(),
		RequestID: r.Header.Get("X-Request-ID"),
		Body:      body,
	})
	forced, isForced := s.forced[r.Method]
	delay := s.delay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if isForced {
		w.WriteHeader(forced)
		return
	}

	if !strings.HasPrefix(r.URL.Path, s.BasePath) {
		http.NotFound(w, r)
		return
	}
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, s.BasePath), "/")
	var parts []string
	if rest != "" {
		parts = strings.Split(rest, "/")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && len(parts) == 0:
		s.writeApplications(w)
	case r.Method == http.MethodGet && len(parts) == 1:
		s.writeApplication(w, parts[0])
	case r.Method == http.MethodGet && len(parts) == 2:
		d, ok := s.apps[parts[0]][parts[1]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, instance.Registration{Instance: d})
	case r.Method == http.MethodPost && len(parts) == 1:
		var reg instance.Registration
		if err := json.Unmarshal(body, &reg); err != nil || reg.Instance == nil || reg.Instance.App != parts[0] {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.store(reg.Instance)
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPut && len(parts) == 2:
		d, ok := s.apps[parts[0]][parts[1]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if ts := r.URL.Query().Get("lastDirtyTimestamp"); ts != "" {
			d.LastDirtyTimestamp = ts
		}
		d.LeaseInfo.LastRenewalTimestamp = time.Now().UnixMilli()
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPut && len(parts) == 3 && parts[2] == "status":
		d, ok := s.apps[parts[0]][parts[1]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		d.OverriddenStatus = instance.Status(r.URL.Query().Get("value"))
		d.Status = d.OverriddenStatus
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodDelete && len(parts) == 2:
		if _, ok := s.apps[parts[0]][parts[1]]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(s.apps[parts[0]], parts[1])
		if len(s.apps[parts[0]]) == 0 {
			delete(s.apps, parts[0])
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

type application struct {
	Name     string                 `json:"name"`
	Instance []*instance.Descriptor `json:"instance"`
}

func (s *Server) application(name string) application {
	ids := make([]string, 0, len(s.apps[name]))
	for id := range s.apps[name] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	app := application{Name: name}
	for _, id := range ids {
		app.Instance = append(app.Instance, s.apps[name][id])
	}
	return app
}

func (s *Server) writeApplications(w http.ResponseWriter) {
	names := make([]string, 0, len(s.apps))
	for name := range s.apps {
		names = append(names, name)
	}
	sort.Strings(names)

	apps := make([]application, 0, len(names))
	for _, name := range names {
		apps = append(apps, s.application(name))
	}
	writeJSON(w, map[string]interface{}{
		"applications": map[string]interface{}{
			"versions__delta": "1",
			"apps__hashcode":  "",
			"application":     apps,
		},
	})
}

func (s *Server) writeApplication(w http.ResponseWriter, name string) {
	if _, ok := s.apps[name]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]interface{}{"application": s.application(name)})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}
