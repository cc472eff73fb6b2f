package storage

import (
	"github.com/sirupsen/logrus"
)

// DocumentStore reads and writes whole documents by path.
type DocumentStore interface {
	ReadDocument(path string) ([]byte, bool)
	WriteDocument(path string, data []byte) bool
}

// documentBackend is the error-returning side every store implements; the boolean
// contract above is built on it so failures still get logged once.
type documentBackend interface {
	read(path string) ([]byte, error)
	write(path string, data []byte) error
}

type loggedStore struct {
	backend documentBackend
	log     *logrus.Entry
}

func (s *loggedStore) ReadDocument(path string) ([]byte, bool) {
	data, err := s.backend.read(path)
	if err != nil {
		if !IsNotFound(err) {
			s.log.Warnf("read %s: %v", path, err)
		}
		return nil, false
	}
	return data, true
}

func (s *loggedStore) WriteDocument(path string, data []byte) bool {
	if err := s.backend.write(path, data); err != nil {
		s.log.Errorf("write %s: %v", path, err)
		return false
	}
	return true
}
