package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"gpu-job-dispatcher/internal/ledger"
	"gpu-job-dispatcher/internal/models"
)

type fakeQuerier struct {
	free map[int]uint64
}

func (f *fakeQuerier) DeviceCount() (int, error) {
	return len(f.free), nil
}

func (f *fakeQuerier) FreeMemMB(id int) (uint64, error) {
	return f.free[id], nil
}

func testServer(t *testing.T) (*httptest.Server, *ledger.Ledger) {
	t.Helper()
	led := ledger.New(filepath.Join(t.TempDir(), "jobs.jsonl"))
	records := []models.Job{
		{ID: "job-1", Command: "echo a", Status: models.StatusPending},
		{ID: "job-2", Command: "echo b", Status: models.StatusRunning, PID: 42},
	}
	if err := led.Rewrite(records); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	srv := httptest.NewServer(New(led, &fakeQuerier{free: map[int]uint64{0: 8000, 1: 12000}}, nil).Router())
	t.Cleanup(srv.Close)
	return srv, led
}

func TestJobsReflectLedger(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/jobs")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var jobs []models.Job
	if err := json.NewDecoder(resp.Body).Decode(&jobs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(jobs) != 2 || jobs[1].ID != "job-2" || jobs[1].PID != 42 {
		t.Fatalf("unexpected jobs: %+v", jobs)
	}
}

func TestJobByID(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/jobs/job-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var job models.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Command != "echo a" {
		t.Fatalf("command = %q", job.Command)
	}

	missing, err := http.Get(srv.URL + "/jobs/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing job status = %d, want 404", missing.StatusCode)
	}
}

func TestDevicesSnapshot(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/devices")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		FreeMemMB map[string]uint64 `json:"free_mem_mb"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.FreeMemMB["1"] != 12000 {
		t.Fatalf("device 1 free = %d, want 12000", body.FreeMemMB["1"])
	}
}

func TestHealthz(t *testing.T) {
	srv, _ := testServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
