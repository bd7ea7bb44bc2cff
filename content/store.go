// Package content implements content-addressed storage for the raw document
// payloads attached to addition tasks. The actual document-batch wire codec
// is out of scope for this module; this package owns a minimal, fully
// specified stand-in encoding (newline-delimited JSON objects) so the rest
// of the module has a concrete format to drive end to end, independently of
// any other package's serialization choices.
package content

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Store is a directory of files named by a 128-bit identifier. Content
// files are immutable once the writer returned by NewWriter is closed, and
// are deleted exactly once by the batch executor when their owning task
// reaches a terminal status.
type Store struct {
	dir string
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating content file directory")
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id)
}

// NewWriter allocates a fresh content-file identifier and returns an
// append-only writer for it, for use at task-registration time.
func (s *Store) NewWriter() (id string, w io.WriteCloser, err error) {
	id = uuid.New().String()
	f, err := os.OpenFile(s.path(id), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", nil, errors.Wrap(err, "creating content file")
	}
	return id, f, nil
}

// GetUpdate opens a content file for reading. Returns os.ErrNotExist if the
// identifier is unknown.
func (s *Store) GetUpdate(id string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(id))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Delete removes a content file. Deleting an already-absent file is not an
// error: cancelation cleanup is best-effort and may race a prior delete.
func (s *Store) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Document is one record of the stand-in content-file encoding: a flat JSON
// object plus whatever field the index's primary key names.
type Document = map[string]interface{}

// ReadDocuments streams every NDJSON document out of r, calling fn
// for each. Iteration stops early, without error, if fn returns false —
// used by the executor's cooperative must_stop_processing checkpoints.
func ReadDocuments(r io.Reader, fn func(Document) (bool, error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var doc Document
		if err := json.Unmarshal(line, &doc); err != nil {
			return fmt.Errorf("decoding document: %w", err)
		}
		more, err := fn(doc)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return scanner.Err()
}

// WriteDocument appends one newline-delimited JSON document to w.
func WriteDocument(w io.Writer, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
