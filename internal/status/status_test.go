package status

import (
	"bytes"
	"testing"
	"time"

	"gpu-job-dispatcher/internal/models"
)

func TestRenderIsDeterministic(t *testing.T) {
	dev0, dev1 := 0, 1
	started := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	jobs := []models.Job{
		{ID: "a", Command: "train.sh --lr 0.1", Status: models.StatusCompleted, DeviceID: &dev0, PID: 100, StartedAt: &started},
		{ID: "b", Command: "train.sh --lr 0.2", Status: models.StatusRunning, DeviceID: &dev1, PID: 200, StartedAt: &started},
		{ID: "c", Command: "train.sh --lr 0.3", Status: models.StatusFailed, DeviceID: &dev0, PID: 300},
		{ID: "d", Command: "train.sh --lr 0.4", Status: models.StatusPending},
	}

	var buf bytes.Buffer
	Render(&buf, jobs)

	want := "[x] train.sh --lr 0.1 | GPU 0 | completed\n" +
		"[>] train.sh --lr 0.2 | GPU 1 | running (pid 200)\n" +
		"[!] train.sh --lr 0.3 | GPU 0 | failed\n" +
		"[ ] train.sh --lr 0.4 | GPU n/a | pending\n"
	if buf.String() != want {
		t.Fatalf("render output:\n%s\nwant:\n%s", buf.String(), want)
	}

	var again bytes.Buffer
	Render(&again, jobs)
	if again.String() != buf.String() {
		t.Fatalf("identical records rendered differently")
	}
}

func TestRenderEmptyLedger(t *testing.T) {
	var buf bytes.Buffer
	Render(&buf, nil)
	if buf.Len() != 0 {
		t.Fatalf("empty ledger produced output %q", buf.String())
	}
}
