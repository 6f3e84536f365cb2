package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
)

// MockEgressServer mocks the media egress service and the room track API.
type MockEgressServer struct {
	*httptest.Server

	mu       sync.Mutex
	tracks   []map[string]string
	started  []map[string]any
	stopped  []string
	nextID   int
	failNext bool
}

// NewMockEgressServer creates a mock egress/room server with composite video
// and mixed audio tracks published by default.
func NewMockEgressServer(t *testing.T) *MockEgressServer {
	t.Helper()
	m := &MockEgressServer{
		tracks: []map[string]string{
			{"id": "vt-1", "kind": "composite_video"},
			{"id": "at-1", "kind": "mixed_audio"},
		},
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.route))
	t.Cleanup(m.Close)
	return m
}

func (m *MockEgressServer) route(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/v1/egress/composite":
		if m.failNext {
			m.failNext = false
			http.Error(w, "no capacity", http.StatusServiceUnavailable)
			return
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck // test mock request
		m.started = append(m.started, req)
		m.nextID++
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"egress_id": "eg-" + strconv.Itoa(m.nextID)}) //nolint:errcheck // test mock response
	case r.Method == http.MethodPost && len(r.URL.Path) > len("/v1/egress/") && r.URL.Path[len(r.URL.Path)-5:] == "/stop":
		id := r.URL.Path[len("/v1/egress/") : len(r.URL.Path)-len("/stop")]
		m.stopped = append(m.stopped, id)
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodGet && len(r.URL.Path) > len("/v1/rooms/"):
		_ = json.NewEncoder(w).Encode(map[string]any{"tracks": m.tracks}) //nolint:errcheck // test mock response
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// SetTracks replaces the published track list.
func (m *MockEgressServer) SetTracks(tracks []map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracks = tracks
}

// FailNextStart makes the next composite start return 503.
func (m *MockEgressServer) FailNextStart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = true
}

// StartedJobs returns the recorded start requests.
func (m *MockEgressServer) StartedJobs() []map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]any(nil), m.started...)
}

// StoppedJobs returns the ids of stopped jobs.
func (m *MockEgressServer) StoppedJobs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.stopped...)
}

// MockTwitchServer mocks the Twitch Helix and id.twitch.tv endpoints used by
// the destination adapter.
type MockTwitchServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockTwitchServer creates a new mock Twitch API server.
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockUserResponse adds a handler for the /users endpoint.
func (m *MockTwitchServer) MockUserResponse(userID, login, displayName string) {
	m.Handlers["/users"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": []map[string]string{
				{"id": userID, "login": login, "display_name": displayName},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockStreamKeyResponse adds a handler for the /streams/key endpoint.
func (m *MockTwitchServer) MockStreamKeyResponse(key string) {
	m.Handlers["/streams/key"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"data": []map[string]string{{"stream_key": key}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockTokenResponse adds a handler for the /oauth2/token endpoint.
func (m *MockTwitchServer) MockTokenResponse(accessToken, refreshToken string, expiresIn int) {
	m.Handlers["/oauth2/token"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"access_token":  accessToken,
			"refresh_token": refreshToken,
			"token_type":    "bearer",
			"expires_in":    expiresIn,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}
