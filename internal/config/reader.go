package config

import (
	"fmt"
	"os"
)

// FileReader reads configuration documents from the local filesystem.
type FileReader struct{}

func NewFileReader() *FileReader {
	return &FileReader{}
}

func (r *FileReader) Read(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("while reading %s: %w", path, err)
	}
	return string(raw), nil
}
