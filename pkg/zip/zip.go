// Package zip archives generated barcode images for bulk export.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
)

// Entry is one file in the archive.
type Entry struct {
	Filename string
	Data     []byte
}

// Archive writes the entries into a zip archive in the order given, so the
// export matches the input order of the batch. Duplicate filenames are
// disambiguated with a numeric suffix.
func Archive(entries []Entry) ([]byte, error) {
	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	used := make(map[string]bool, len(entries))
	next := make(map[string]int, len(entries))
	for _, entry := range entries {
		name := entry.Filename
		n := next[entry.Filename]
		for used[name] {
			n++
			name = numbered(entry.Filename, n)
		}
		next[entry.Filename] = n
		used[name] = true

		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("zip: create %s: %w", name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zip: close archive: %w", err)
	}
	return buf.Bytes(), nil
}

func numbered(name string, n int) string {
	for i := len(name) - 1; i > 0; i-- {
		if name[i] == '.' {
			return fmt.Sprintf("%s-%d%s", name[:i], n, name[i:])
		}
	}
	return fmt.Sprintf("%s-%d", name, n)
}
