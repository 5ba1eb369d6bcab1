package logview

import (
	"fmt"

	"github.com/cuelink/cuelink-go/pkg/log"
)

// RunFilter copies the events of path matching opts into a new capture
// file at output and returns how many were written.
func RunFilter(path, output string, opts Options) (int, error) {
	filter, err := opts.Filter()
	if err != nil {
		return 0, err
	}

	logger, err := log.NewFileLogger(output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}

	count := 0
	err = each(path, filter, func(event log.Event) error {
		logger.Log(event)
		count++
		return nil
	})
	if cerr := logger.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output: %w", cerr)
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}
