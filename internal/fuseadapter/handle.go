package fuseadapter

import (
	"context"
	"io"
	"os"

	"github.com/anacrolix/fuse"
	fusefs "github.com/anacrolix/fuse/fs"

	"github.com/jdegges/arsenal/internal/sftpfs"
)

// fileHandle binds an open remote file to the session tree.Open resolved it
// against. spec.md §4.3's closing rule -- "read is not tree-traversed" --
// is enforced by construction here: Read always goes straight to h.file,
// never back through tree.Traverse.
type fileHandle struct {
	fs   *FS
	file *sftpfs.FileHandle
}

var (
	_ fusefs.HandleReader   = (*fileHandle)(nil)
	_ fusefs.HandleReleaser = (*fileHandle)(nil)
)

func (h *fileHandle) Read(ctx context.Context, req *fuse.ReadRequest, resp *fuse.ReadResponse) error {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	buf := make([]byte, req.Size)
	n, err := h.file.ReadAt(buf, req.Offset)
	if err != nil && err != io.EOF {
		return translate(err)
	}
	resp.Data = buf[:n]
	return nil
}

func (h *fileHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	return translate(h.file.Close())
}

// dirHandle binds an open remote directory listing. ReadDirAll drains it in
// one pass under the adapter's global mutex, matching spec.md §4.4's
// "repeatedly session_readdir under the global mutex" -- anacrolix/fuse has
// no incremental readdir callback, so the whole listing is produced at
// once rather than entry-by-entry.
type dirHandle struct {
	fs  *FS
	dir *sftpfs.DirHandle
}

var (
	_ fusefs.HandleReadDirAller = (*dirHandle)(nil)
	_ fusefs.HandleReleaser     = (*dirHandle)(nil)
)

func (h *dirHandle) ReadDirAll(ctx context.Context) ([]fuse.Dirent, error) {
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()

	var entries []fuse.Dirent
	for {
		name, attrs, err := h.dir.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, translate(err)
		}
		entries = append(entries, fuse.Dirent{Type: direntType(attrs.Mode), Name: name})
	}
	return entries, nil
}

func (h *dirHandle) Release(ctx context.Context, req *fuse.ReleaseRequest) error {
	return translate(h.dir.Close())
}

func direntType(mode os.FileMode) fuse.DirentType {
	switch {
	case mode&os.ModeDir != 0:
		return fuse.DT_Dir
	case mode&os.ModeSymlink != 0:
		return fuse.DT_Link
	case mode&os.ModeNamedPipe != 0:
		return fuse.DT_FIFO
	case mode&os.ModeSocket != 0:
		return fuse.DT_Socket
	case mode&os.ModeDevice != 0:
		if mode&os.ModeCharDevice != 0 {
			return fuse.DT_Char
		}
		return fuse.DT_Block
	default:
		return fuse.DT_File
	}
}
