package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ElektryonUK/storjcloud-client/internal/models"
)

func testClient(srv *httptest.Server) *Client {
	return NewClient(Config{
		Endpoint: srv.URL,
		Token:    "test-token",
		Timeout:  5 * time.Second,
	}, nil)
}

func TestValidateToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/me" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q, want bearer test-token", got)
		}
		fmt.Fprint(w, `{"email":"op@example.com","permissions":["nodes:read","nodes:write"]}`)
	}))
	defer srv.Close()

	account, err := testClient(srv).ValidateToken(context.Background())
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if account.Email != "op@example.com" {
		t.Errorf("Email = %q, want op@example.com", account.Email)
	}
	if len(account.Permissions) != 2 {
		t.Errorf("Permissions = %v, want two entries", account.Permissions)
	}
}

func TestValidateTokenUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer srv.Close()

	if _, err := testClient(srv).ValidateToken(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("ValidateToken() error = %v, want ErrUnauthorized", err)
	}
}

func TestValidateTokenServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv).ValidateToken(context.Background())

	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("ValidateToken() error = %v, want *StatusError", err)
	}
	if serr.Code != http.StatusBadGateway {
		t.Errorf("StatusError.Code = %d, want 502", serr.Code)
	}
	if serr.Body != "upstream exploded" {
		t.Errorf("StatusError.Body = %q, want the response text", serr.Body)
	}
}

func TestRegisterPostsEachRecord(t *testing.T) {
	var (
		mu    sync.Mutex
		posts []RegisterPayload
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/storj/nodes" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var p RegisterPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		mu.Lock()
		posts = append(posts, p)
		mu.Unlock()
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	records := []models.NodeRecord{
		{NodeID: "node-a", Name: "a", StatusPort: 14002, DataPort: 28967},
		{NodeID: "node-b", Name: "b", StatusPort: 14003, DataPort: 28968},
	}

	count, err := testClient(srv).Register(context.Background(), records)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Register() = %d, want 2", count)
	}
	if len(posts) != 2 {
		t.Fatalf("dashboard saw %d posts, want 2", len(posts))
	}
	if posts[0].NodeID != "node-a" || posts[1].NodeID != "node-b" {
		t.Errorf("posted IDs = %q, %q", posts[0].NodeID, posts[1].NodeID)
	}
}

func TestRegisterConflictFallsBackToPatch(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		mu.Unlock()

		switch r.Method {
		case http.MethodPost:
			http.Error(w, "exists", http.StatusConflict)
		case http.MethodPatch:
			w.WriteHeader(http.StatusOK)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer srv.Close()

	count, err := testClient(srv).Register(context.Background(), []models.NodeRecord{
		{NodeID: "existing-node", StatusPort: 14002},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if count != 1 {
		t.Errorf("Register() = %d, want 1 (conflict resolved by update)", count)
	}

	want := []string{"POST /storj/nodes", "PATCH /storj/nodes/existing-node"}
	if len(requests) != len(want) {
		t.Fatalf("requests = %v, want %v", requests, want)
	}
	for i := range want {
		if requests[i] != want[i] {
			t.Errorf("request %d = %q, want %q", i, requests[i], want[i])
		}
	}
}

func TestRegisterConflictPatchFailureCountsAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			http.Error(w, "exists", http.StatusConflict)
		case http.MethodPatch:
			http.Error(w, "nope", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	count, err := testClient(srv).Register(context.Background(), []models.NodeRecord{
		{NodeID: "existing-node"},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if count != 0 {
		t.Errorf("Register() = %d, want 0", count)
	}
}

func TestRegisterFailuresAreIsolatedPerRecord(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p RegisterPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		switch p.NodeID {
		case "node-bad":
			http.Error(w, "rejected", http.StatusBadRequest)
		case "node-unauthorized":
			http.Error(w, "who are you", http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	records := []models.NodeRecord{
		{NodeID: "node-1"},
		{NodeID: "node-bad"},
		{NodeID: "node-unauthorized"},
		{NodeID: "node-2"},
	}

	count, err := testClient(srv).Register(context.Background(), records)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if count != 2 {
		t.Errorf("Register() = %d, want 2 (failures must not abort the batch)", count)
	}
}

func TestRegisterStopsOnCancelledContext(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	count, err := testClient(srv).Register(ctx, []models.NodeRecord{
		{NodeID: "node-1"},
		{NodeID: "node-2"},
	})
	if err == nil {
		t.Error("Register() should report the cancelled context")
	}
	if count != 0 || attempts != 0 {
		t.Errorf("Register() = %d with %d attempts, want none after cancellation", count, attempts)
	}
}

func TestListNodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/storj/nodes" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		fmt.Fprint(w, `{"nodes":[
			{"id":"reg-1","nodeId":"node-a","address":"10.0.0.5","dashboardPort":14002},
			{"id":"reg-2","nodeId":"node-b"}
		]}`)
	}))
	defer srv.Close()

	refs, err := testClient(srv).ListNodes(context.Background())
	if err != nil {
		t.Fatalf("ListNodes() error = %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("ListNodes() returned %d refs, want 2", len(refs))
	}
	if refs[0].RegistryID != "reg-1" || refs[0].NodeID != "node-a" {
		t.Errorf("first ref = %+v", refs[0])
	}
	if refs[0].ProbeAddress() != "10.0.0.5" || refs[0].ProbePort() != 14002 {
		t.Errorf("first ref probe target = %s:%d", refs[0].ProbeAddress(), refs[0].ProbePort())
	}
	// Registry records without location data fall back to local defaults.
	if refs[1].ProbeAddress() != "127.0.0.1" || refs[1].ProbePort() != 14002 {
		t.Errorf("second ref probe target = %s:%d, want 127.0.0.1:14002", refs[1].ProbeAddress(), refs[1].ProbePort())
	}
}

func TestListNodesNonOKIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv).ListNodes(context.Background())

	var serr *StatusError
	if !errors.As(err, &serr) {
		t.Fatalf("ListNodes() error = %v, want *StatusError", err)
	}
	if serr.Code != http.StatusServiceUnavailable {
		t.Errorf("StatusError.Code = %d, want 503", serr.Code)
	}
}

func TestUpdate(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantErr    error
		wantStatus bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "no content", status: http.StatusNoContent},
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: ErrUnauthorized},
		{name: "server error", status: http.StatusInternalServerError, wantStatus: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPatch || r.URL.Path != "/storj/nodes/reg-9" {
					t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := testClient(srv).Update(context.Background(), "reg-9", UpdatePayload{
				Status: models.HealthOnline,
			})

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Update() error = %v, want %v", err, tt.wantErr)
				}
			case tt.wantStatus:
				var serr *StatusError
				if !errors.As(err, &serr) || serr.Code != tt.status {
					t.Errorf("Update() error = %v, want StatusError with code %d", err, tt.status)
				}
			default:
				if err != nil {
					t.Errorf("Update() error = %v, want nil", err)
				}
			}
		})
	}
}

func TestRegistrationIdempotence(t *testing.T) {
	// First call registers; the second hits the conflict path and
	// updates. Both count a success and the dashboard holds one node.
	known := map[string]bool{}
	var mu sync.Mutex

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		switch r.Method {
		case http.MethodPost:
			var p RegisterPayload
			if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
				t.Errorf("decode payload: %v", err)
			}
			if known[p.NodeID] {
				http.Error(w, "exists", http.StatusConflict)
				return
			}
			known[p.NodeID] = true
			w.WriteHeader(http.StatusCreated)
		case http.MethodPatch:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	client := testClient(srv)
	record := []models.NodeRecord{{NodeID: "node-a", StatusPort: 14002}}

	first, err := client.Register(context.Background(), record)
	if err != nil {
		t.Fatalf("first Register() error = %v", err)
	}
	second, err := client.Register(context.Background(), record)
	if err != nil {
		t.Fatalf("second Register() error = %v", err)
	}

	if first != 1 || second != 1 {
		t.Errorf("Register() counts = %d, %d, want 1 and 1", first, second)
	}
	if len(known) != 1 {
		t.Errorf("dashboard holds %d nodes, want exactly 1", len(known))
	}
}
