// Package fuseadapter binds github.com/anacrolix/fuse's kernel-bridge node
// interfaces to internal/tree calls (spec component C4). It is the only
// package that knows about FUSE; internal/sftpfs and internal/tree never
// import it.
package fuseadapter

import (
	"errors"
	"syscall"

	"github.com/anacrolix/fuse"

	"github.com/jdegges/arsenal/internal/sftpfs"
)

// translate maps a C1/C3 sentinel error onto the FUSE errno surface, per
// spec.md §7's taxonomy-to-errno table. Every error crossing the mount
// boundary passes through here; nothing leaks through untranslated.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, sftpfs.ErrNotFound):
		return fuse.Errno(syscall.ENOENT)
	case errors.Is(err, sftpfs.ErrPermissionDenied):
		return fuse.Errno(syscall.EACCES)
	case errors.Is(err, sftpfs.ErrInvalidArgument):
		return fuse.Errno(syscall.EINVAL)
	case errors.Is(err, sftpfs.ErrTransport):
		// Transport failures are logged by internal/debug at the point they
		// occur; ENOENT here is for kernel-client compatibility, matching
		// spec.md §7's explicit mapping rather than a more descriptive
		// errno most callers wouldn't handle any differently.
		return fuse.Errno(syscall.ENOENT)
	default:
		return fuse.Errno(syscall.ENOENT)
	}
}
