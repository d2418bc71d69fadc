package core

import (
	"fmt"
	"io"
	"os"
)

// CopyFile copies a regular file from src to dst.
func CopyFile(src, dst string) error {
	sourceFileStat, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source file %s for copying: %w", src, err)
	}
	if !sourceFileStat.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file %s for copying: %w", src, err)
	}
	defer source.Close()

	destination, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s for copying: %w", dst, err)
	}
	defer destination.Close()

	_, err = io.Copy(destination, source)
	if err != nil {
		return fmt.Errorf("failed to copy data from %s to %s: %w", src, dst, err)
	}
	return nil
}

// NewSimpleObservation builds an Observation from a plain Go map result
// datablock, for callers that don't already hold a FieldValues.
func NewSimpleObservation(streamID uint64, phenomenonTime Instant, fields map[string]any) (*Observation, error) {
	fv, err := NewFieldValuesFromMap(fields)
	if err != nil {
		return nil, err
	}
	return NewObservation(streamID, phenomenonTime, fv)
}
