package repository

import (
	"io/fs"

	"github.com/okian/ladder/pkg/logger"
)

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithFileMode sets the permission bits of written documents.
func WithFileMode(mode fs.FileMode) Option {
	return func(s *FileStore) {
		if mode != 0 {
			s.mode = mode
		}
	}
}

// WithIndent sets the JSON indentation of written documents. Empty writes
// compact JSON.
func WithIndent(indent string) Option {
	return func(s *FileStore) { s.indent = indent }
}

// WithLogger sets the logger used for skipped files.
func WithLogger(l logger.Logger) Option {
	return func(s *FileStore) {
		if l != nil {
			s.log = l
		}
	}
}
