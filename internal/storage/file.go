package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// FileOpener reads partitions from the local filesystem, addressed either
// as file:// URLs or bare paths.
type FileOpener struct{}

func (FileOpener) Open(_ context.Context, location string) (Object, error) {
	p := strings.TrimPrefix(location, "file://")
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	return f, nil
}
