package persistence

import "time"

// WatchState is what the watcher last wrote for one page.
type WatchState struct {
	PageURL    string
	VideoID    string
	Signature  string
	OutputPath string
	UpdatedAt  time.Time
}
