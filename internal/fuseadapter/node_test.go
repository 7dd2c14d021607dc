package fuseadapter

import (
	"os"
	"testing"

	"github.com/anacrolix/fuse"
)

func TestFuseFlagsToOS(t *testing.T) {
	cases := []struct {
		name  string
		flags fuse.OpenFlags
		want  int
	}{
		{"read only", fuse.OpenFlags(os.O_RDONLY), os.O_RDONLY},
		{"append", fuse.OpenFlags(os.O_APPEND), os.O_APPEND},
		{"write only", fuse.OpenFlags(os.O_WRONLY), os.O_WRONLY},
		{"read write create", fuse.OpenFlags(os.O_RDWR | os.O_CREATE), os.O_RDWR | os.O_CREATE},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := fuseFlagsToOS(tc.flags); got != tc.want {
				t.Fatalf("fuseFlagsToOS(%v) = %v, want %v", tc.flags, got, tc.want)
			}
		})
	}
}
