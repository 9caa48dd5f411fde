package agent

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/updrive-io/updrive/internal/updater"
	"github.com/updrive-io/updrive/pkg/options"
)

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	dir := t.TempDir()

	upd := options.NewUpdaterOptions()
	upd.AppID = "app-test"
	upd.ServerURL = "http://127.0.0.1:1" // never reached in these tests
	upd.CompletedMarkerPath = filepath.Join(dir, "update_completed")
	upd.StateDir = dir

	cfg := &Config{
		DeviceID: "dev-1",
		Updater:  upd,
		HTTP:     options.NewHTTPOptions(),
		Mqtt:     options.NewMqttOptions(), // empty broker, telemetry off
		S3:       options.NewS3Options(),   // empty endpoint, plain HTTP fetch
	}

	a, err := cfg.NewAgent()
	if err != nil {
		t.Fatalf("NewAgent failed: %v", err)
	}
	return a
}

func TestParsePartitions(t *testing.T) {
	parts, err := parsePartitions([]string{"/dev/sda2:/dev/sda4", "/dev/sda3:/dev/sda5"})
	if err != nil {
		t.Fatalf("parsePartitions failed: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("got %d partitions, want 2", len(parts))
	}
	if parts[0] != (updater.Partition{Source: "/dev/sda2", Target: "/dev/sda4"}) {
		t.Errorf("first pair = %+v", parts[0])
	}
	if parts[1] != (updater.Partition{Source: "/dev/sda3", Target: "/dev/sda5"}) {
		t.Errorf("second pair = %+v", parts[1])
	}

	for _, bad := range [][]string{
		nil,
		{""},
		{"/dev/sda2"},
		{":/dev/sda4"},
		{"/dev/sda2:"},
	} {
		if _, err := parsePartitions(bad); err == nil {
			t.Errorf("parsePartitions(%v) should fail", bad)
		}
	}
}

func TestStatusEndpoint(t *testing.T) {
	a := newTestAgent(t)
	srv := httptest.NewServer(a.newRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/status")
	if err != nil {
		t.Fatalf("GET /v1/status failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "application/json" {
		t.Errorf("content type = %q", got)
	}

	var snap updater.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.StatusName != "UPDATE_STATUS_IDLE" {
		t.Errorf("fresh agent status = %q, want IDLE", snap.StatusName)
	}
	if snap.NewVersion != "0.0.0.0" {
		t.Errorf("fresh agent version = %q, want 0.0.0.0", snap.NewVersion)
	}
}

func TestHealthzEndpoint(t *testing.T) {
	a := newTestAgent(t)
	srv := httptest.NewServer(a.newRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestAgent(t)
	srv := httptest.NewServer(a.newRouter())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status code = %d", resp.StatusCode)
	}
}

func TestTriggerEndpointMethod(t *testing.T) {
	a := newTestAgent(t)
	srv := httptest.NewServer(a.newRouter())
	defer srv.Close()

	// The trigger is a state change; GET must not be routable.
	resp, err := http.Get(srv.URL + "/v1/update")
	if err != nil {
		t.Fatalf("GET /v1/update failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET on trigger = %d, want 405", resp.StatusCode)
	}

	resp, err = http.Post(srv.URL+"/v1/update", "", nil)
	if err != nil {
		t.Fatalf("POST /v1/update failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("POST on trigger = %d, want 202", resp.StatusCode)
	}
}
