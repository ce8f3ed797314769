package fs

import (
	"errors"
	"os"
	"sync"
)

// ErrInjected is the default error returned by a FaultyFS.
var ErrInjected = errors.New("injected fault error")

// FaultyFS is a FileSystem wrapper that injects I/O errors, used to exercise
// the store's recover-to-false failure paths.
type FaultyFS struct {
	FS FileSystem

	mu        sync.Mutex
	failReads bool
	failSync  bool
	err       error
}

// NewFaultyFS creates a FaultyFS wrapping the provided FS (or Default if nil).
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{FS: fsys, err: ErrInjected}
}

// FailReads makes every subsequent ReadAt return an error.
func (f *FaultyFS) FailReads(fail bool) {
	f.mu.Lock()
	f.failReads = fail
	f.mu.Unlock()
}

// FailSync makes every subsequent Sync return an error.
func (f *FaultyFS) FailSync(fail bool) {
	f.mu.Lock()
	f.failSync = fail
	f.mu.Unlock()
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &faultyFile{File: file, fs: f}, nil
}

func (f *FaultyFS) Remove(name string) error             { return f.FS.Remove(name) }
func (f *FaultyFS) Rename(oldpath, newpath string) error { return f.FS.Rename(oldpath, newpath) }
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) {
	return f.FS.Stat(name)
}
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}

type faultyFile struct {
	File
	fs *FaultyFS
}

func (f *faultyFile) ReadAt(p []byte, off int64) (int, error) {
	f.fs.mu.Lock()
	fail := f.fs.failReads
	err := f.fs.err
	f.fs.mu.Unlock()
	if fail {
		return 0, err
	}
	return f.File.ReadAt(p, off)
}

func (f *faultyFile) Sync() error {
	f.fs.mu.Lock()
	fail := f.fs.failSync
	err := f.fs.err
	f.fs.mu.Unlock()
	if fail {
		return err
	}
	return f.File.Sync()
}
