package storage

import (
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

const fallbackMIME = "application/octet-stream"

var previewExtensions = []string{".json", ".js", ".html", ".css"}

// IsTextual reports whether a file is worth previewing in logs.
func IsTextual(mimeType, name string) bool {
	if strings.HasPrefix(strings.ToLower(mimeType), "text/") {
		return true
	}
	lower := strings.ToLower(name)
	for _, ext := range previewExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Preview returns at most n characters from the start of the file at path.
func Preview(path string, n int) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	buf, err := io.ReadAll(io.LimitReader(f, int64(n)*utf8.UTFMax))
	if err != nil {
		return "", err
	}
	s := string(buf)
	if utf8.RuneCountInString(s) <= n {
		return s, nil
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i], nil
		}
		count++
	}
	return s, nil
}

// DetectMIME sniffs the content type of a stored file.
func DetectMIME(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return fallbackMIME
	}
	return mt.String()
}
