package models

import "time"

// FileListingEntry is recomputed from the filesystem on every listing request.
type FileListingEntry struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
	Path     string    `json:"path"`
}
