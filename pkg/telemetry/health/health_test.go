package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mercator-hq/filegate/pkg/config"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func TestCheckReadiness(t *testing.T) {
	tests := []struct {
		name     string
		critical map[string]CheckFunc
		optional map[string]CheckFunc
		want     string
	}{
		{name: "no checks", want: StatusReady},
		{
			name:     "all healthy",
			critical: map[string]CheckFunc{"store": ok},
			optional: map[string]CheckFunc{"cache": ok},
			want:     StatusReady,
		},
		{
			name:     "optional failing",
			critical: map[string]CheckFunc{"store": ok},
			optional: map[string]CheckFunc{"cache": failing},
			want:     StatusDegraded,
		},
		{
			name:     "critical failing",
			critical: map[string]CheckFunc{"store": failing},
			optional: map[string]CheckFunc{"cache": failing},
			want:     StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second, "test")
			for name, fn := range tt.critical {
				c.RegisterCheck(name, fn)
			}
			for name, fn := range tt.optional {
				c.RegisterOptionalCheck(name, fn)
			}

			got := c.CheckReadiness(context.Background())
			if got.Status != tt.want {
				t.Errorf("status = %q, want %q (%+v)", got.Status, tt.want, got.Checks)
			}
			if len(got.Checks) != len(tt.critical)+len(tt.optional) {
				t.Errorf("got %d results", len(got.Checks))
			}
		})
	}
}

func TestCheckReadiness_Timeout(t *testing.T) {
	c := New(20*time.Millisecond, "")
	c.RegisterCheck("slow", func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
		}
		return nil
	})

	got := c.CheckReadiness(context.Background())
	if got.Status != StatusUnhealthy {
		t.Fatalf("status = %q, want unhealthy", got.Status)
	}
	if msg := got.Checks["slow"].Message; msg != ErrCheckTimeout.Error() {
		t.Errorf("message = %q, want %q", msg, ErrCheckTimeout.Error())
	}
}

func TestRegisterAndUnregister(t *testing.T) {
	c := New(0, "")
	c.RegisterCheck("b", ok)
	c.RegisterOptionalCheck("a", ok)
	c.RegisterCheck("b", failing)

	names := c.ListChecks()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("ListChecks() = %v", names)
	}
	if got := c.CheckReadiness(context.Background()); got.Status != StatusUnhealthy {
		t.Errorf("replaced check not used, status = %q", got.Status)
	}

	c.UnregisterCheck("b")
	if got := c.CheckReadiness(context.Background()); got.Status != StatusReady {
		t.Errorf("status after unregister = %q", got.Status)
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second, "1.0.0")
	c.RegisterCheck("store", failing)

	mux := http.NewServeMux()
	c.Mount(mux, config.HealthConfig{Enabled: true, LivenessPath: "/health", ReadinessPath: "/ready"})

	tests := []struct {
		method string
		path   string
		code   int
		status string
	}{
		{http.MethodGet, "/health", http.StatusOK, StatusOK},
		{http.MethodGet, "/ready", http.StatusServiceUnavailable, StatusUnhealthy},
		{http.MethodHead, "/health", http.StatusOK, ""},
		{http.MethodPost, "/ready", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			if tt.status == "" {
				return
			}
			var body HealthStatus
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tt.status || body.Version != "1.0.0" {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestMount_Disabled(t *testing.T) {
	mux := http.NewServeMux()
	New(0, "").Mount(mux, config.HealthConfig{Enabled: false, LivenessPath: "/health"})

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", rec.Code)
	}
}
