package gpu

import (
	"errors"
	"testing"
)

type fakeQuerier struct {
	count int
	free  map[int]uint64
	fail  map[int]bool
}

func (f *fakeQuerier) DeviceCount() (int, error) {
	if f.count < 0 {
		return 0, errors.New("count failed")
	}
	return f.count, nil
}

func (f *fakeQuerier) FreeMemMB(id int) (uint64, error) {
	if f.fail[id] {
		return 0, errors.New("query failed")
	}
	return f.free[id], nil
}

func TestSnapshotAllDevices(t *testing.T) {
	q := &fakeQuerier{count: 3, free: map[int]uint64{0: 1000, 1: 2000, 2: 3000}}

	snap := Snapshot(q, nil)
	if len(snap) != 3 {
		t.Fatalf("expected 3 devices, got %d", len(snap))
	}
	if snap[2] != 3000 {
		t.Fatalf("device 2 free = %d, want 3000", snap[2])
	}
}

func TestSnapshotHonorsAllowList(t *testing.T) {
	q := &fakeQuerier{count: 4, free: map[int]uint64{0: 1, 1: 2, 2: 3, 3: 4}}

	snap := Snapshot(q, []int{1, 3})
	if len(snap) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(snap))
	}
	if _, ok := snap[0]; ok {
		t.Fatalf("device 0 should not be in allow-listed snapshot")
	}
}

func TestSnapshotOmitsFailingDevice(t *testing.T) {
	q := &fakeQuerier{
		count: 3,
		free:  map[int]uint64{0: 1000, 2: 3000},
		fail:  map[int]bool{1: true},
	}

	snap := Snapshot(q, []int{0, 1, 2})
	if len(snap) != 2 {
		t.Fatalf("expected failing device omitted, got %d entries", len(snap))
	}
	if _, ok := snap[1]; ok {
		t.Fatalf("device 1 should have been dropped")
	}
}

func TestSnapshotCountFailure(t *testing.T) {
	snap := Snapshot(&fakeQuerier{count: -1}, nil)
	if len(snap) != 0 {
		t.Fatalf("expected empty snapshot when device count fails")
	}
}

func TestSortedIDs(t *testing.T) {
	ids := SortedIDs(map[int]uint64{3: 1, 0: 2, 7: 3, 1: 4})
	want := []int{0, 1, 3, 7}
	if len(ids) != len(want) {
		t.Fatalf("got %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("got %v, want %v", ids, want)
		}
	}
}
