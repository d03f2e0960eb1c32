package status

import (
	"fmt"
	"io"

	"gpu-job-dispatcher/internal/models"
)

// Render writes one line per job in ledger order. Output depends only on the
// records given, so identical ledger contents always render identically.
func Render(w io.Writer, jobs []models.Job) {
	for _, job := range jobs {
		device := "GPU n/a"
		if job.DeviceID != nil {
			device = fmt.Sprintf("GPU %d", *job.DeviceID)
		}
		if job.Status == models.StatusRunning {
			fmt.Fprintf(w, "%s %s | %s | running (pid %d)\n", icon(job.Status), job.Command, device, job.PID)
			continue
		}
		fmt.Fprintf(w, "%s %s | %s | %s\n", icon(job.Status), job.Command, device, job.Status)
	}
}

func icon(status string) string {
	switch status {
	case models.StatusCompleted:
		return "[x]"
	case models.StatusRunning:
		return "[>]"
	case models.StatusFailed:
		return "[!]"
	default:
		return "[ ]"
	}
}
