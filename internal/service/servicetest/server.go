// Package servicetest runs an in-process fake of the processing service
package servicetest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
)

// Call records one request received by the fake
type Call struct {
	Method    string
	Endpoint  string // "presets", "upload", "process", "cleanup", "download", "play"
	SessionID string
	Body      map[string]string // decoded JSON body of process calls
	Filename  string            // uploaded file name
}

// Config controls the fake's replies. Fail* fields inject failures and the
// Message fields set the "error" text returned with them.
type Config struct {
	FailUpload      bool
	UploadMessage   string
	FailProcess     bool
	ProcessMessage  string
	FailCleanup     bool
	FailPresets     bool
	PresetsJSON     string
	ProcessedOutput string

	// ProcessHook, when set, runs inside the process handler before it replies
	ProcessHook func(sessionID string)
}

// Server is a fake processing service
type Server struct {
	*httptest.Server

	mu    sync.Mutex
	cfg   Config
	calls []Call
	next  int
}

// DefaultPresets mirrors the service's built-in preset table
const DefaultPresets = `{
  "slapback": {"name": "Slapback Delay", "description": "Classic rockabilly delay", "pot1": 0.1, "pot2": 0.0, "pot3": 0.0, "pot4": 0.0},
  "standard": {"name": "Standard Echo", "description": "Balanced delay with repeats", "pot1": 0.3, "pot2": 0.0, "pot3": 0.0, "pot4": 0.5},
  "ambient": {"name": "Ambient Echo", "description": "Long spacey delay", "pot1": 0.5, "pot2": 0.0, "pot3": 0.2, "pot4": 0.7},
  "chorus": {"name": "Chorus Effect", "description": "Short delay with modulation", "pot1": 0.02, "pot2": 0.0, "pot3": 0.5, "pot4": 0.3},
  "tape": {"name": "Tape Echo", "description": "Warm tape-style delay", "pot1": 0.25, "pot2": 0.0, "pot3": 0.1, "pot4": 0.6}
}`

// New starts a fake service; callers must Close it
func New() *Server {
	s := &Server{cfg: Config{PresetsJSON: DefaultPresets, ProcessedOutput: "ID3processed"}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Configure changes the fake's behaviour for subsequent requests
func (s *Server) Configure(fn func(*Config)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cfg)
}

// Calls returns the recorded requests in arrival order
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Endpoints returns the endpoint names of the recorded requests in order
func (s *Server) Endpoints() []string {
	var out []string
	for _, c := range s.Calls() {
		out = append(out, c.Endpoint)
	}
	return out
}

// Count returns how many times an endpoint was hit
func (s *Server) Count(endpoint string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Endpoint == endpoint {
			n++
		}
	}
	return n
}

func (s *Server) record(c Call) {
	s.mu.Lock()
	s.calls = append(s.calls, c)
	s.mu.Unlock()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	call := Call{Method: r.Method, Endpoint: parts[0]}
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	if len(parts) > 1 {
		call.SessionID = parts[1]
	}

	switch call.Endpoint {
	case "presets":
		s.record(call)
		if cfg.FailPresets {
			writeError(w, http.StatusInternalServerError, "")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, cfg.PresetsJSON)

	case "upload":
		if f, hdr, err := r.FormFile("file"); err == nil {
			call.Filename = hdr.Filename
			f.Close()
		}
		s.record(call)
		if cfg.FailUpload {
			writeError(w, http.StatusBadRequest, cfg.UploadMessage)
			return
		}
		s.mu.Lock()
		s.next++
		id := fmt.Sprintf("session-%d", s.next)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": id})

	case "process":
		body := map[string]string{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		call.Body = body
		s.record(call)
		if cfg.ProcessHook != nil {
			cfg.ProcessHook(call.SessionID)
		}
		if cfg.FailProcess {
			writeError(w, http.StatusInternalServerError, cfg.ProcessMessage)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case "cleanup":
		s.record(call)
		if cfg.FailCleanup {
			writeError(w, http.StatusInternalServerError, "cleanup exploded")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case "download", "play":
		s.record(call)
		w.Header().Set("Content-Type", "audio/mpeg")
		io.WriteString(w, cfg.ProcessedOutput)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		w.WriteHeader(status)
		return
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
