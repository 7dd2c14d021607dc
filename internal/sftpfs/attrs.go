package sftpfs

import (
	"os"
	"time"

	"github.com/pkg/sftp"
)

// Attrs is the portable attribute set every Volume operation that touches a
// node returns, translated from whatever the remote server sent back. pkg/sftp
// folds the wire-level attribute presence bitmask into an os.FileInfo plus a
// *sftp.FileStat accessible through Sys(): a field the server omitted comes
// back zero rather than "absent", which is the behavioural equivalent spec.md
// §4.2 asks for, so no separate presence tracking is kept here.
type Attrs struct {
	Size  int64
	Mode  os.FileMode
	Uid   uint32
	Gid   uint32
	Atime time.Time
	Mtime time.Time
	// Ctime is not part of the SFTP protocol; it is set equal to Mtime,
	// matching the original implementation's documented stand-in.
	Ctime time.Time
}

func attrsFromFileInfo(fi os.FileInfo) Attrs {
	a := Attrs{
		Size: fi.Size(),
		Mode: fi.Mode(),
	}
	if st, ok := fi.Sys().(*sftp.FileStat); ok {
		a.Uid = st.UID
		a.Gid = st.GID
		a.Atime = time.Unix(int64(st.Atime), 0)
		a.Mtime = time.Unix(int64(st.Mtime), 0)
	} else {
		a.Mtime = fi.ModTime()
		a.Atime = fi.ModTime()
	}
	a.Ctime = a.Mtime
	return a
}

// VFSAttrs mirrors struct statvfs, as returned by the statvfs@openssh.com
// extension. Volumes that don't advertise the extension surface
// ErrTransport from Statvfs instead of a zeroed struct.
type VFSAttrs struct {
	Bsize   uint64
	Frsize  uint64
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Favail  uint64
	Fsid    uint64
	Flag    uint64
	Namemax uint64
}

func vfsAttrsFromStatVFS(s *sftp.StatVFS) VFSAttrs {
	return VFSAttrs{
		Bsize:   s.Bsize,
		Frsize:  s.Frsize,
		Blocks:  s.Blocks,
		Bfree:   s.Bfree,
		Bavail:  s.Bavail,
		Files:   s.Files,
		Ffree:   s.Ffree,
		Favail:  s.Favail,
		Fsid:    s.Fsid,
		Flag:    s.Flag,
		Namemax: s.Namemax,
	}
}
