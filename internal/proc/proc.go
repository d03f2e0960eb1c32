package proc

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Alive reports whether a process with the given pid exists. Signal 0 probes
// without delivering anything; EPERM still means the process is there.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, unix.EPERM)
}

// TryWait reaps pid without blocking. It returns (code, true) once the child
// has exited and been collected; a signal death maps to 128+signal. (0, false)
// means the child is still running, or pid is not a direct child of this
// process, in which case its exit status is not observable here at all.
func TryWait(pid int) (int, bool) {
	if pid <= 0 {
		return 0, false
	}
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil || wpid != pid {
			return 0, false
		}
		break
	}
	switch {
	case ws.Exited():
		return ws.ExitStatus(), true
	case ws.Signaled():
		return 128 + int(ws.Signal()), true
	default:
		return 0, false
	}
}

// Probe satisfies the scheduler's liveness interface with real process checks.
type Probe struct{}

func (Probe) Alive(pid int) bool          { return Alive(pid) }
func (Probe) TryWait(pid int) (int, bool) { return TryWait(pid) }
