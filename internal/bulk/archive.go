package bulk

import (
	"errors"

	"bargen/pkg/zip"
)

// ErrNothingToArchive is returned when no row of the submission succeeded.
var ErrNothingToArchive = errors.New("bulk: no succeeded rows to archive")

// Archive zips the artifacts of every succeeded row, in input order.
func Archive(results []RowResult) ([]byte, error) {
	var entries []zip.Entry
	for _, result := range results {
		if result.Status != RowStatusSucceeded || result.Snapshot.Artifact == nil {
			continue
		}
		entries = append(entries, zip.Entry{
			Filename: result.Filename(),
			Data:     result.Snapshot.Artifact.Data,
		})
	}
	if len(entries) == 0 {
		return nil, ErrNothingToArchive
	}
	return zip.Archive(entries)
}
