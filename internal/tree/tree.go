package tree

import "github.com/jdegges/arsenal/internal/sftpfs"

// Lstat resolves path against root without following a trailing symlink.
func Lstat(root *Node, path string) (sftpfs.Attrs, error) {
	return Traverse[sftpfs.Attrs](root, &StatOp{Path: path, Follow: false})
}

// Stat resolves path against root, following a trailing symlink.
func Stat(root *Node, path string) (sftpfs.Attrs, error) {
	return Traverse[sftpfs.Attrs](root, &StatOp{Path: path, Follow: true})
}

// Realpath resolves path against root and rewrites the winning volume's
// jail prefix onto mountPoint.
func Realpath(root *Node, path, mountPoint string) (string, error) {
	return Traverse[string](root, &RealpathOp{Path: path, MountPoint: mountPoint})
}

// Readlink resolves the symlink at path against root.
func Readlink(root *Node, path string) (string, error) {
	return Traverse[string](root, &ReadlinkOp{Path: path})
}

// Open opens path against root for reading. flags is restricted the same
// way sftpfs.Session.Open restricts it.
func Open(root *Node, path string, flags int) (*sftpfs.FileHandle, error) {
	return Traverse[*sftpfs.FileHandle](root, &OpenOp{Path: path, Flags: flags})
}

// Opendir opens path against root for directory listing.
func Opendir(root *Node, path string) (*sftpfs.DirHandle, error) {
	return Traverse[*sftpfs.DirHandle](root, &OpendirOp{Path: path})
}

// Statvfs sums filesystem statistics for path across every volume the
// traversal visits. Unlike the other operations, a Distribute here always
// visits all of its children (spec.md §4.3), so the returned value is the
// accumulated sum rather than any single child's raw answer.
func Statvfs(root *Node, path string) (sftpfs.VFSAttrs, error) {
	op := &StatvfsOp{Path: path}
	_, err := Traverse[sftpfs.VFSAttrs](root, op)
	if err != nil {
		return sftpfs.VFSAttrs{}, err
	}
	return op.Sum, nil
}
