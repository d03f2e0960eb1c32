package dispatch

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"gpu-job-dispatcher/internal/gpu"
	"gpu-job-dispatcher/internal/launcher"
	"gpu-job-dispatcher/internal/ledger"
	"gpu-job-dispatcher/internal/models"
	"gpu-job-dispatcher/internal/telemetry"
)

// Config holds the settings the scheduler itself consumes.
type Config struct {
	DeviceIDs    []int // allow-list; empty means all present devices
	MinFreeMemMB uint64
	PollInterval time.Duration
}

// Launcher starts a command on a device. Satisfied by *launcher.Launcher.
type Launcher interface {
	Launch(jobID, command string, deviceID int) (launcher.Result, error)
}

// Prober answers liveness and exit-status questions about dispatched pids.
// Satisfied by proc.Probe.
type Prober interface {
	Alive(pid int) bool
	TryWait(pid int) (int, bool)
}

// Scheduler drives the dispatch loop: each cycle it reconciles running jobs
// against observed process state, snapshots device memory, and assigns
// pending jobs in discovery order, persisting through the ledger as it goes.
type Scheduler struct {
	cfg      Config
	ledger   *ledger.Ledger
	querier  gpu.MemQuerier
	launcher Launcher
	prober   Prober
}

// New wires a scheduler from its collaborators.
func New(cfg Config, led *ledger.Ledger, q gpu.MemQuerier, l Launcher, p Prober) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		ledger:   led,
		querier:  q,
		launcher: l,
		prober:   p,
	}
}

// Run executes dispatch cycles until the context is cancelled. The sleep
// between cycles is the loop's only suspension point; a cycle that errors is
// logged and retried on the next interval, never escalated.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := s.tick(); err != nil {
			log.Printf("dispatch: cycle error: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// tick runs one full dispatch cycle against the current on-disk ledger.
func (s *Scheduler) tick() error {
	// The previous cycle's in-memory copy is never trusted; crash recovery
	// or external inspection may have changed the file.
	jobs, err := s.ledger.Load()
	if err != nil {
		return err
	}

	if s.reconcile(jobs) {
		if err := s.ledger.Rewrite(jobs); err != nil {
			return fmt.Errorf("persist reconciled jobs: %w", err)
		}
	}

	var pending []int
	running := 0
	for i, job := range jobs {
		switch job.Status {
		case models.StatusPending:
			pending = append(pending, i)
		case models.StatusRunning:
			running++
		}
	}
	telemetry.PendingGauge.Set(float64(len(pending)))
	telemetry.RunningGauge.Set(float64(running))

	if len(pending) == 0 {
		return nil
	}

	snap := gpu.Snapshot(s.querier, s.cfg.DeviceIDs)
	for id, free := range snap {
		telemetry.DeviceFreeMem.WithLabelValues(strconv.Itoa(id)).Set(float64(free))
	}
	if len(snap) == 0 {
		log.Printf("dispatch: no devices answered; deferring %d pending job(s)", len(pending))
		return nil
	}

	for _, i := range pending {
		dev, ok := pickDevice(snap, s.cfg.MinFreeMemMB)
		if !ok {
			// Strict FIFO: when the head of the queue cannot be placed,
			// everything behind it waits for the next cycle too.
			log.Printf("dispatch: no device with %d MB free; deferring remaining pending jobs", s.cfg.MinFreeMemMB)
			break
		}
		if err := s.assign(&jobs[i], dev, snap[dev]); err != nil {
			log.Printf("dispatch: launching %q failed: %v", jobs[i].Command, err)
			jobs[i].Status = models.StatusFailed
			telemetry.JobsFailed.Inc()
		} else {
			telemetry.JobsDispatched.Inc()
		}
		// One rewrite per assignment: a crash after this point loses at most
		// the next assignment, never one already dispatched.
		if err := s.ledger.Rewrite(jobs); err != nil {
			return fmt.Errorf("persist assignment: %w", err)
		}
		if jobs[i].Status == models.StatusRunning {
			// Reservation heuristic: assume the job will claim the threshold
			// amount, so a later job this cycle cannot double-book the device
			// before it reports reduced free memory itself.
			snap[dev] -= s.cfg.MinFreeMemMB
		}
	}
	return nil
}

// reconcile folds observed process state into running records. An exit code
// of exactly 0 means completed; any other collected code means failed. A pid
// that is gone without a collectable status also means failed, since its exit
// code is unrecoverable.
func (s *Scheduler) reconcile(jobs []models.Job) bool {
	changed := false
	for i := range jobs {
		if jobs[i].Status != models.StatusRunning {
			continue
		}
		if code, exited := s.prober.TryWait(jobs[i].PID); exited {
			if code == 0 {
				jobs[i].Status = models.StatusCompleted
				telemetry.JobsCompleted.Inc()
			} else {
				jobs[i].Status = models.StatusFailed
				telemetry.JobsFailed.Inc()
			}
			changed = true
			continue
		}
		if !s.prober.Alive(jobs[i].PID) {
			jobs[i].Status = models.StatusFailed
			telemetry.JobsFailed.Inc()
			changed = true
		}
	}
	return changed
}

// assign launches the job on the chosen device and records the dispatch.
func (s *Scheduler) assign(job *models.Job, deviceID int, free uint64) error {
	log.Printf("dispatch: assigning %q to device %d (~%d MB free)", job.Command, deviceID, free)
	res, err := s.launcher.Launch(job.ID, job.Command, deviceID)
	if err != nil {
		return err
	}
	dev := deviceID
	started := res.StartedAt
	job.DeviceID = &dev
	job.PID = res.PID
	job.StartedAt = &started
	job.LogFile = res.LogFile
	job.Status = models.StatusRunning
	return nil
}

// pickDevice returns the qualifying device with the most free memory. Ids
// are walked in ascending order, so equal readings resolve to the lowest id.
func pickDevice(snap map[int]uint64, minFree uint64) (int, bool) {
	var (
		best     int
		bestFree uint64
		found    bool
	)
	for _, id := range gpu.SortedIDs(snap) {
		free := snap[id]
		if free < minFree {
			continue
		}
		if !found || free > bestFree {
			best, bestFree, found = id, free, true
		}
	}
	return best, found
}
