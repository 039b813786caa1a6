package models

// TimeLayout is ISO-8601 with a fixed three-digit millisecond fraction.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// UploadedFileRecord describes one successful upload. It is built once and never mutated.
type UploadedFileRecord struct {
	OriginalName string `json:"originalName"`
	SavedAs      string `json:"savedAs"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimeType"`
	Path         string `json:"path"`       // client-declared logical path as sent, defaults to OriginalName
	UploadTime   string `json:"uploadTime"` // TimeLayout, UTC
	SavedPath    string `json:"savedPath"`  // absolute filesystem path
}
