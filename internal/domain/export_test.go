package domain

import (
	"testing"
	"time"
)

func TestJobName(t *testing.T) {
	interval := NewInterval(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), Period{Count: 1, Unit: UnitMonth})

	tests := []struct {
		name      string
		product   string
		partition Partition
		want      string
	}{
		{"whole aoi", "NDVI", Partition{Index: -1}, "NDVI_2023-06-01_2023-06-30"},
		{"first partition", "B4", Partition{Index: 0}, "B4_2023-06-01_2023-06-30_0"},
		{"count", CountProduct, Partition{Index: 12}, "COUNT_2023-06-01_2023-06-30_12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := JobName(tt.product, interval, tt.partition); got != tt.want {
				t.Errorf("JobName() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTaskState(t *testing.T) {
	tests := []struct {
		state      TaskState
		name       string
		terminal   bool
		successful bool
	}{
		{TaskCreated, "CREATED", false, false},
		{TaskRunning, "RUNNING", false, false},
		{TaskCompleted, "COMPLETED", true, true},
		{TaskFailed, "FAILED", true, false},
		{TaskCancelled, "CANCELLED", true, false},
		{TaskState(99), "UNKNOWN", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.String(); got != tt.name {
				t.Errorf("String() = %v, want %v", got, tt.name)
			}
			if got := tt.state.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
			if got := tt.state.IsSuccessful(); got != tt.successful {
				t.Errorf("IsSuccessful() = %v, want %v", got, tt.successful)
			}
		})
	}
}

func TestStorageItemMatchesJob(t *testing.T) {
	const job = "NDVI_2023-06-01_2023-06-30_1"

	tests := []struct {
		name string
		item StorageItem
		want bool
	}{
		{"exact", StorageItem{Title: job}, true},
		{"tif", StorageItem{Title: job + ".tif"}, true},
		{"tile", StorageItem{Title: job + "-0000000000-0000000000.tif"}, true},
		{"longer partition index", StorageItem{Title: "NDVI_2023-06-01_2023-06-30_10.tif"}, false},
		{"other product", StorageItem{Title: "NDVI_2023-06-01_2023-06-30_2.tif"}, false},
		{"folder", StorageItem{Title: job, Folder: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.item.MatchesJob(job); got != tt.want {
				t.Errorf("MatchesJob(%q) on %q = %v, want %v", job, tt.item.Title, got, tt.want)
			}
		})
	}
}
