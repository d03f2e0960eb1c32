package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// VisibilityEnv is the single environment variable through which a launched
// command learns which device it may use.
const VisibilityEnv = "CUDA_VISIBLE_DEVICES"

// Launcher starts job commands as independent child processes with combined
// output captured in per-job log files. It does no monitoring of its own:
// liveness and exit-status checks happen on later dispatch cycles, and only
// work because the launched process is a direct child of this one.
type Launcher struct {
	logDir string
}

// New returns a launcher writing logs under logDir.
func New(logDir string) *Launcher {
	return &Launcher{logDir: logDir}
}

// Result describes a process that was just started.
type Result struct {
	PID       int
	LogFile   string
	StartedAt time.Time
}

// Launch starts command under sh -c with VisibilityEnv set to deviceID and
// stdout+stderr redirected to a fresh log file. It returns as soon as the
// process has started, never waiting for it to exit.
func (l *Launcher) Launch(jobID, command string, deviceID int) (Result, error) {
	if err := os.MkdirAll(l.logDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create log dir: %w", err)
	}
	now := time.Now()
	logFile := filepath.Join(l.logDir, logName(jobID, now))
	f, err := os.Create(logFile)
	if err != nil {
		return Result{}, fmt.Errorf("create log file: %w", err)
	}
	defer f.Close() // the child holds its own descriptor after Start

	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Env = append(envWithout(VisibilityEnv), VisibilityEnv+"="+strconv.Itoa(deviceID))
	cmd.Stdout = f
	cmd.Stderr = f
	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("start command: %w", err)
	}
	return Result{PID: cmd.Process.Pid, LogFile: logFile, StartedAt: now}, nil
}

// envWithout copies the parent environment minus any existing value for key,
// so the launched process sees exactly one assignment of it.
func envWithout(key string) []string {
	env := os.Environ()
	out := env[:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func logName(jobID string, t time.Time) string {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("job_%s_%s.log", short, t.Format("20060102_150405"))
}
