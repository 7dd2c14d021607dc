package fuseadapter

import (
	"syscall"
	"testing"

	"github.com/anacrolix/fuse"

	"github.com/jdegges/arsenal/internal/sftpfs"
)

func TestTranslate(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want syscall.Errno
	}{
		{"nil", nil, 0},
		{"not found", sftpfs.ErrNotFound, syscall.ENOENT},
		{"permission denied", sftpfs.ErrPermissionDenied, syscall.EACCES},
		{"invalid argument", sftpfs.ErrInvalidArgument, syscall.EINVAL},
		{"transport", sftpfs.ErrTransport, syscall.ENOENT},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := translate(tc.err)
			if tc.err == nil {
				if got != nil {
					t.Fatalf("translate(nil) = %v, want nil", got)
				}
				return
			}
			errno, ok := got.(fuse.Errno)
			if !ok {
				t.Fatalf("translate(%v) = %T, want fuse.Errno", tc.err, got)
			}
			if syscall.Errno(errno) != tc.want {
				t.Fatalf("translate(%v) = %v, want %v", tc.err, errno, tc.want)
			}
		})
	}
}
