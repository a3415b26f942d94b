// Package filestore provides the filesystem primitives every file-backed
// subsystem in agentrt builds on: atomic writes, a generic JSON-backed
// collection, and bounded-map eviction helpers. Adapted from the teacher's
// internal/infra/filestore package.
package filestore

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/kaptinlin/jsonrepair"
)

// EnsureDir creates path and all parents if missing.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// EnsureParentDir creates the parent directory of filePath.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// AtomicWrite writes data to filePath via a temp file + rename so partial
// writes never corrupt the file. The rename is atomic within one filesystem
// (spec.md §5 "cross-filesystem operation is not supported").
func AtomicWrite(filePath string, data []byte, perm os.FileMode) error {
	if err := EnsureParentDir(filePath); err != nil {
		return err
	}
	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, filePath); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// ReadFileOrEmpty reads path, returning (nil, nil) if it doesn't exist.
func ReadFileOrEmpty(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}

// MarshalJSONIndent marshals v as indented JSON with a trailing newline.
func MarshalJSONIndent(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// UnmarshalLenient unmarshals data into v, attempting a jsonrepair pass on
// malformed input before giving up. This absorbs truncated writes left by a
// killed process (spec.md §4.A "Fails with StateCorruption on JSON parse
// errors; callers recover ... never by deleting unless clear_state() is
// explicitly invoked" — repairing first avoids an unnecessary corruption
// classification for the common truncated-write case).
func UnmarshalLenient(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err == nil {
		return nil
	}
	repaired, rerr := jsonrepair.JSONRepair(string(data))
	if rerr != nil {
		return json.Unmarshal(data, v) // surface the original error
	}
	return json.Unmarshal([]byte(repaired), v)
}
