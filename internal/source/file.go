package source

import (
	"context"
	"os"
)

// FileConfig holds configuration for a FileAdapter.
type FileConfig struct {
	// Name is the source name, used in errors.
	Name string

	// Path is the file to read.
	Path string

	// Decoder parses the file contents. Nil keeps the raw document.
	Decoder Decoder
}

// FileAdapter obtains a payload by reading and parsing a local file.
type FileAdapter struct {
	cfg FileConfig
}

// NewFileAdapter creates a new file-read adapter.
func NewFileAdapter(cfg FileConfig) *FileAdapter {
	return &FileAdapter{cfg: cfg}
}

// Fetch reads the file once.
func (a *FileAdapter) Fetch(ctx context.Context) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, readFailed(a.cfg.Name, err)
	}

	data, err := os.ReadFile(a.cfg.Path)
	if err != nil {
		return nil, readFailed(a.cfg.Name, err)
	}

	return decode(a.cfg.Name, data, a.cfg.Decoder)
}

// Path returns the file path read by the adapter.
func (a *FileAdapter) Path() string {
	return a.cfg.Path
}
