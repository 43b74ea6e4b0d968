package storage

import (
	"bufio"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
	"os"
	"path/filepath"
	"sync"
	"taglogger/pkg/runtime/constant"
	"taglogger/pkg/utils/fileutil"
)

type FileSink struct {
	mu     sync.Mutex
	path   string
	f      *os.File
	w      *bufio.Writer
	lock   fileutil.Releaser
	closed bool
}

var _ Sink = (*FileSink)(nil)

// OpenFileSink opens path for writing, truncating it unless appendMode is set.
// The file stays exclusively locked until Close.
func OpenFileSink(path string, appendMode bool) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "create directory for %s", path)
		}
	}

	flag := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flag |= os.O_APPEND
	}
	f, lock, err := fileutil.OpenLocked(path, flag, 0644)
	if err != nil {
		if os.IsNotExist(err) || os.IsPermission(err) {
			return nil, errors.Wrapf(err, "open %s", path)
		}
		return nil, errors.Wrapf(constant.ErrSinkLocked, "%s: %v", path, err)
	}
	// truncate after locking
	if !appendMode {
		if err = f.Truncate(0); err != nil {
			lock.Release()
			f.Close()
			return nil, errors.Wrapf(err, "truncate %s", path)
		}
	}

	absPath, _ := filepath.Abs(path)
	klog.V(2).InfoS("Opened output file", "path", absPath, "append", appendMode)
	return &FileSink{
		path: path,
		f:    f,
		w:    bufio.NewWriter(f),
		lock: lock,
	}, nil
}

func (s *FileSink) Path() string {
	return s.path
}

func (s *FileSink) WriteLine(line string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return constant.ErrSinkClosed
	}
	if _, err := s.w.WriteString(line); err != nil {
		return errors.Wrapf(err, "write %s", s.path)
	}
	if err := s.w.Flush(); err != nil {
		return errors.Wrapf(err, "write %s", s.path)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	err := s.w.Flush()
	if rerr := s.lock.Release(); rerr != nil {
		klog.V(4).InfoS("Failed to release file lock", "path", s.path, "err", rerr)
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.Wrapf(err, "close %s", s.path)
	}
	return nil
}
