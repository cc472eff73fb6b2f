package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var errNotFound = errors.New("document not found")

// IsNotFound reports whether err means the document was never written.
func IsNotFound(err error) bool {
	return errors.Cause(err) == errNotFound
}

type fileManagement struct {
	root string
}

// NewFileStore keeps every document as one file below root.
func NewFileStore(root string, log *logrus.Entry) DocumentStore {
	return &loggedStore{backend: &fileManagement{root: root}, log: log}
}

func (fs *fileManagement) resolve(path string) string {
	clean := filepath.Clean("/" + strings.TrimPrefix(path, "/"))
	return filepath.Join(fs.root, clean)
}

func (fs *fileManagement) read(path string) ([]byte, error) {
	data, err := os.ReadFile(fs.resolve(path))
	if os.IsNotExist(err) {
		return nil, errNotFound
	}
	return data, errors.Wrap(err, "read document file")
}

func (fs *fileManagement) write(path string, data []byte) error {
	target := fs.resolve(path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return errors.Wrap(err, "create document directory")
	}
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return errors.Wrap(err, "write document file")
	}
	return errors.Wrap(os.Rename(tmp, target), "replace document file")
}
