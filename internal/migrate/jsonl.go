// Package migrate moves task snapshots in and out of tsync: JSON Lines for
// round-trips and backups, XLSX for sharing.
package migrate

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fieldwork/tasksync/internal/schema"
)

// Format is an export file format.
type Format string

const (
	FormatJSONL Format = "jsonl"
	FormatXLSX  Format = "xlsx"
)

// FormatFor picks a format from a file extension. Anything that is not
// .xlsx is JSON Lines.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return FormatXLSX
	}
	return FormatJSONL
}

// ReadJSONL parses one task per line. Omitted status and timestamps get
// defaults; an invalid task fails the whole read.
func ReadJSONL(r io.Reader) ([]schema.Task, error) {
	var tasks []schema.Task
	decoder := json.NewDecoder(r)
	now := time.Now().UTC()
	lineNum := 0

	for {
		var task schema.Task
		if err := decoder.Decode(&task); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++

		task.SetDefaults(now)
		if err := task.Validate(); err != nil {
			return nil, fmt.Errorf("invalid task at line %d: %w", lineNum, err)
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// ReadJSONLFile reads a JSON Lines file.
func ReadJSONLFile(path string) ([]schema.Task, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()

	return ReadJSONL(file)
}

// WriteJSONL writes one task per line.
func WriteJSONL(w io.Writer, tasks []schema.Task) error {
	bw := bufio.NewWriter(w)
	encoder := json.NewEncoder(bw)
	for i := range tasks {
		if err := encoder.Encode(&tasks[i]); err != nil {
			return fmt.Errorf("failed to encode task %s: %w", tasks[i].ID, err)
		}
	}
	return bw.Flush()
}

// WriteFile exports tasks to path in the format its extension selects. The
// file is replaced atomically.
func WriteFile(path string, tasks []schema.Task) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	switch FormatFor(path) {
	case FormatXLSX:
		err = WriteXLSX(file, tasks)
	default:
		err = WriteJSONL(file, tasks)
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
