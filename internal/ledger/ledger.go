package ledger

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"gpu-job-dispatcher/internal/models"
	"gpu-job-dispatcher/internal/telemetry"
)

// Ledger persists job records as JSON Lines in a single file. The dispatcher
// process is assumed to be the only writer; after any mutation completes the
// file matches the in-memory sequence that produced it.
type Ledger struct {
	path string
}

// New wraps the ledger file at path. The file may not exist yet.
func New(path string) *Ledger {
	return &Ledger{path: path}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Load parses the persisted sequence in file order. A line that does not
// parse is skipped with a warning rather than failing the load. A missing
// file is an empty ledger.
func (l *Ledger) Load() ([]models.Job, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	var jobs []models.Job
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var job models.Job
		if err := json.Unmarshal(line, &job); err != nil {
			telemetry.LedgerParseErrors.Inc()
			log.Printf("ledger: skipping malformed line %d in %s: %v", lineno, l.path, err)
			continue
		}
		jobs = append(jobs, job)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return jobs, nil
}

// Append durably writes a single new record to the end of the file.
func (l *Ledger) Append(job models.Job) error {
	line, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger for append: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("append job: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync ledger: %w", err)
	}
	return f.Close()
}

// Rewrite replaces the persisted sequence with jobs. The new contents are
// staged in a temp file in the same directory and swapped in with a rename,
// so a crash mid-rewrite leaves the previous file intact.
func (l *Ledger) Rewrite(jobs []models.Job) error {
	dir := filepath.Dir(l.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(l.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp ledger: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op once renamed

	w := bufio.NewWriter(tmp)
	for _, job := range jobs {
		line, err := json.Marshal(job)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("marshal job: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return fmt.Errorf("write temp ledger: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush temp ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		return fmt.Errorf("swap ledger: %w", err)
	}
	return nil
}

// Ingest appends a pending record, with a freshly generated id, for every
// command text that has no existing record with identical text, terminal or
// not. Matching is exact string comparison, no normalization. Each new record
// is durable before Ingest returns. The full updated sequence is returned.
func (l *Ledger) Ingest(commands []string) ([]models.Job, error) {
	jobs, err := l.Load()
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(jobs))
	for _, j := range jobs {
		known[j.Command] = struct{}{}
	}
	for _, cmd := range commands {
		if _, ok := known[cmd]; ok {
			continue
		}
		job := models.Job{
			ID:      uuid.New().String(),
			Command: cmd,
			Status:  models.StatusPending,
		}
		if err := l.Append(job); err != nil {
			return nil, err
		}
		known[cmd] = struct{}{}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// ReconcileStartup classifies stale running records left by a previous
// session. A running record whose pid is no longer alive becomes failed:
// the exit code of a process that finished before the dispatcher restarted
// is unrecoverable, so a clean exit cannot be told apart from a crash.
// Returns true when any record changed.
func ReconcileStartup(jobs []models.Job, alive func(pid int) bool) bool {
	changed := false
	for i := range jobs {
		if jobs[i].Status != models.StatusRunning {
			continue
		}
		if !alive(jobs[i].PID) {
			jobs[i].Status = models.StatusFailed
			changed = true
		}
	}
	return changed
}
