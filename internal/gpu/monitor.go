package gpu

import (
	"fmt"
	"log"
	"sort"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// MemQuerier answers point-in-time free-memory questions about devices.
type MemQuerier interface {
	DeviceCount() (int, error)
	FreeMemMB(id int) (uint64, error)
}

// NVML queries device memory through the NVIDIA management library.
type NVML struct{}

// InitNVML loads the management library. Failure here means no device can
// ever be queried, the one startup condition the dispatcher treats as fatal.
func InitNVML() (*NVML, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, fmt.Errorf("nvml init: %s", nvml.ErrorString(ret))
	}
	return &NVML{}, nil
}

// Shutdown releases the library.
func (n *NVML) Shutdown() {
	_ = nvml.Shutdown()
}

func (n *NVML) DeviceCount() (int, error) {
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("nvml device count: %s", nvml.ErrorString(ret))
	}
	return count, nil
}

func (n *NVML) FreeMemMB(id int) (uint64, error) {
	dev, ret := nvml.DeviceGetHandleByIndex(id)
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("nvml handle for device %d: %s", id, nvml.ErrorString(ret))
	}
	mem, ret := dev.GetMemoryInfo()
	if ret != nvml.SUCCESS {
		return 0, fmt.Errorf("nvml memory info for device %d: %s", id, nvml.ErrorString(ret))
	}
	return mem.Free / 1024 / 1024, nil
}

// Snapshot returns free memory per device for a single dispatch cycle. An
// empty allow-list means every present device. A device whose query fails is
// omitted with a warning; callers treat it as unavailable this cycle, never
// as a reason to abort.
func Snapshot(q MemQuerier, ids []int) map[int]uint64 {
	if len(ids) == 0 {
		count, err := q.DeviceCount()
		if err != nil {
			log.Printf("gpu: device count failed: %v", err)
			return nil
		}
		ids = make([]int, count)
		for i := range ids {
			ids[i] = i
		}
	}
	snap := make(map[int]uint64, len(ids))
	for _, id := range ids {
		free, err := q.FreeMemMB(id)
		if err != nil {
			log.Printf("gpu: skipping device %d this cycle: %v", id, err)
			continue
		}
		snap[id] = free
	}
	return snap
}

// SortedIDs returns a snapshot's device ids in ascending order, so that ties
// on free memory always resolve to the lowest id.
func SortedIDs(snap map[int]uint64) []int {
	ids := make([]int, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
