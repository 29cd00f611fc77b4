package credential

import (
	"os"
	"path/filepath"

	"github.com/navariltd/disburser/internal/models"
	"github.com/navariltd/disburser/internal/validation"
)

// FileStore resolves certificate references against a directory on disk.
type FileStore struct {
	dir string
}

// NewFileStore creates a certificate file store rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Load reads a certificate file by its reference name.
func (s *FileStore) Load(ref string) ([]byte, error) {
	if !validation.IsValidCertificateFile(ref) {
		return nil, models.ErrInvalidCertificate
	}

	// Reject path traversal in stored references.
	name := filepath.Base(ref)
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if os.IsNotExist(err) {
		return nil, models.ErrCertificateNotFound
	}
	if err != nil {
		return nil, err
	}

	return data, nil
}
