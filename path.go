package kubexport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Segments splits a resource name such as "ns/deployment.apps/web" on "/".
func Segments(resourceName string) []string {
	return strings.Split(strings.Trim(resourceName, "/"), "/")
}

// Prefix returns every segment but the last one.
func Prefix(resourceName string) []string {
	segments := Segments(resourceName)
	return segments[:len(segments)-1]
}

// Leaf returns the last segment of a resource name.
func Leaf(resourceName string) string {
	segments := Segments(resourceName)
	return segments[len(segments)-1]
}

// PathConflictError is returned when a directory is needed where a regular file already exists.
type PathConflictError struct {
	Path string
}

func (e *PathConflictError) Error() string {
	return fmt.Sprintf("'%s' file exists in current directory", e.Path)
}

// PathManager mirrors resource names as directories below root.
//
// Each directory prefix is checked at most once per PathManager. The first time a prefix is seen an
// existing directory is removed, unless keepOriginal is set, so resources deleted from the cluster
// since the previous export leave nothing behind. Later resources sharing the prefix never touch it
// again, which protects siblings written earlier in the same run.
type PathManager struct {
	fs           afero.Fs
	root         string
	keepOriginal bool
	checked      sets.Set[string]
	logger       logrus.FieldLogger
}

func NewPathManager(fs afero.Fs, root string, keepOriginal bool, logger logrus.FieldLogger) *PathManager {
	if root == "" {
		root = "."
	}
	return &PathManager{
		fs:           fs,
		root:         root,
		keepOriginal: keepOriginal,
		checked:      sets.New[string](),
		logger:       logger,
	}
}

// Checked reports whether the directory prefix (relative to root) was already validated.
func (m *PathManager) Checked(dir string) bool {
	return m.checked.Has(dir)
}

// EnsurePath validates and creates every directory level of the resource name's prefix and returns
// the deepest one.
func (m *PathManager) EnsurePath(resourceName string) (string, error) {
	dir := ""
	for _, segment := range Prefix(resourceName) {
		if dir == "" {
			dir = segment
		} else {
			dir = dir + "/" + segment
		}
		if m.checked.Has(dir) {
			continue
		}

		path := filepath.Join(m.root, filepath.FromSlash(dir))
		info, err := m.fs.Stat(path)
		if err != nil && !os.IsNotExist(err) {
			return "", errors.Wrapf(err, "stat %s", path)
		}
		if info != nil && !info.IsDir() {
			return "", errors.WithStack(&PathConflictError{Path: path})
		}
		if info != nil && !m.keepOriginal {
			m.logger.WithField("dir", path).Debugln("removing previous export")
			if err := m.fs.RemoveAll(path); err != nil {
				return "", errors.Wrapf(err, "remove %s", path)
			}
		}
		if err := m.fs.MkdirAll(path, os.ModeDir|os.ModePerm); err != nil && !os.IsExist(err) {
			return "", errors.Wrapf(err, "create %s", path)
		}

		m.checked.Insert(dir)
	}
	return filepath.Join(m.root, filepath.FromSlash(dir)), nil
}

// FilePath returns the file a resource is written to: its directory prefix plus "<leaf>.<format>".
func (m *PathManager) FilePath(resourceName, format string) string {
	elem := append([]string{m.root}, Prefix(resourceName)...)
	return filepath.Join(append(elem, Leaf(resourceName)+"."+format)...)
}

// WriteResource ensures the directory structure for resourceName and writes data into it.
func (m *PathManager) WriteResource(resourceName, format string, data []byte) (string, error) {
	if _, err := m.EnsurePath(resourceName); err != nil {
		return "", err
	}
	path := m.FilePath(resourceName, format)
	if err := afero.WriteFile(m.fs, path, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "write %s", path)
	}
	return path, nil
}
