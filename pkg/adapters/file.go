package adapters

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/HatiCode/shiftcast/pkg/staffing"
)

// FileSource reads a forecast from a JSON file. The document is read again
// on every Fetch so an external job can replace it between runs.
type FileSource struct {
	Path            string
	VolumePath      string
	TimestampPath   string
	TimestampFormat string
}

func (f *FileSource) Name() string { return "file" }

// Fetch implements Source.
func (f *FileSource) Fetch(ctx context.Context, w Window) ([]staffing.ForecastInterval, error) {
	if f.Path == "" || f.VolumePath == "" || f.TimestampPath == "" {
		return nil, errors.New("file source: path, volumePath and timestampPath are required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("read forecast file: %w", err)
	}

	points, err := extractPoints(doc, f.VolumePath, f.TimestampPath, f.TimestampFormat)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return toIntervals(points, w)
}
