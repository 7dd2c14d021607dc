package sftpfs

import (
	"io"
	"os"

	"github.com/pkg/sftp"

	"github.com/jdegges/arsenal/internal/errors"
)

// Sentinel error kinds, in the precedence order of spec.md §7. Callers use
// errors.Is against these, never against the underlying pkg/sftp/ssh error
// directly, so internal/tree and internal/fuseadapter stay free of any
// transport-specific error type.
var (
	// ErrInvalidArgument covers a null/zero handle or a flag combination
	// open() does not support.
	ErrInvalidArgument = errors.New("sftpfs: invalid argument")
	// ErrPermissionDenied covers a jail-escape (resolved path left the
	// volume's jail) or a remote "permission denied" response. Disallowed
	// open flags are reported as ErrInvalidArgument instead.
	ErrPermissionDenied = errors.New("sftpfs: permission denied")
	// ErrNotFound covers a remote "no such file" response.
	ErrNotFound = errors.New("sftpfs: not found")
	// ErrTransport covers every other SSH/SFTP layer failure.
	ErrTransport = errors.New("sftpfs: transport error")
)

// ErrEndOfFile is io.EOF directly: Go's io.Reader contract already
// distinguishes "clean end of stream" from "read error" without needing a
// parallel errno-style sentinel, which is the idiomatic answer to spec.md
// §9's note about the original C implementation smuggling EOF through
// errno.
var ErrEndOfFile = sentinelEOF

type eofSentinel = error

var sentinelEOF eofSentinel = io.EOF

// classify maps an error returned by a pkg/sftp or golang.org/x/crypto/ssh
// call into one of the sentinel kinds above. pkg/sftp's status errors
// satisfy errors.Is against os.ErrNotExist/os.ErrPermission (it implements
// the fs.PathError / fs.ErrNotExist wrapping contract), so that's the
// first mechanism used here; a raw *sftp.StatusError that reaches classify
// unconverted is then matched by its status code.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if err == io.EOF {
		return io.EOF
	}
	switch {
	case os.IsNotExist(err):
		return errors.Wrap(ErrNotFound, err.Error())
	case os.IsPermission(err):
		return errors.Wrap(ErrPermissionDenied, err.Error())
	}

	var statusErr *sftp.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.Code {
		case uint32(sftp.ErrSSHFxNoSuchFile):
			return errors.Wrap(ErrNotFound, err.Error())
		case uint32(sftp.ErrSSHFxPermissionDenied):
			return errors.Wrap(ErrPermissionDenied, err.Error())
		case uint32(sftp.ErrSSHFxEOF):
			return io.EOF
		}
	}

	return errors.Wrap(ErrTransport, err.Error())
}
