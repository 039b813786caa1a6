package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const timestampLayout = "2006-01-02T15:04:05.000Z"

var timestampReplacer = strings.NewReplacer(":", "-", ".", "-")

// Timestamp renders t as an ISO-8601 UTC instant that is safe as a path segment,
// e.g. 2024-05-01T10-20-30-123Z.
func Timestamp(t time.Time) string {
	return timestampReplacer.Replace(t.UTC().Format(timestampLayout))
}

// SplitExt splits the final path element of name into base and extension.
// The extension keeps its dot; a name whose only dot is the leading one has no extension.
func SplitExt(name string) (base, ext string) {
	name = filepath.Base(name)
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "file", ""
	}
	i := strings.LastIndexByte(name, '.')
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// AllocateName derives the on-disk name {base}_{timestamp}{ext} for an upload received at.
// It never looks at the filesystem.
func AllocateName(original string, at time.Time) string {
	base, ext := SplitExt(original)
	return fmt.Sprintf("%s_%s%s", base, Timestamp(at), ext)
}

// disambiguatedName is used only after AllocateName's result already exists on disk.
func disambiguatedName(original string, at time.Time) string {
	base, ext := SplitExt(original)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s_%s_%s%s", base, Timestamp(at), suffix, ext)
}
