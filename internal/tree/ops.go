package tree

import "github.com/jdegges/arsenal/internal/sftpfs"

// StatOp implements the stat/lstat acceptance predicate of spec.md §4.3:
// "result==0 AND st_size != 0" -- a Distribute branch only counts as having
// the entry if the remote reports a non-empty size. Follow selects stat
// (follow a trailing symlink) vs. lstat.
type StatOp struct {
	Path   string
	Follow bool
}

func (o *StatOp) Invoke(s *sftpfs.Session) (sftpfs.Attrs, error) {
	if o.Follow {
		return s.Stat(o.Path)
	}
	return s.Lstat(o.Path)
}

func (o *StatOp) Acceptable(r sftpfs.Attrs, err error) bool {
	return err == nil && r.Size != 0
}

// RealpathOp implements the realpath acceptance predicate: "return value >=
// 0", i.e. any success resolves the search.
type RealpathOp struct {
	Path       string
	MountPoint string
}

func (o *RealpathOp) Invoke(s *sftpfs.Session) (string, error) {
	return s.Realpath(o.Path, o.MountPoint)
}

func (o *RealpathOp) Acceptable(_ string, err error) bool {
	return err == nil
}

// ReadlinkOp implements the readlink acceptance predicate, identical in
// shape to RealpathOp: any success resolves the search.
type ReadlinkOp struct {
	Path string
}

func (o *ReadlinkOp) Invoke(s *sftpfs.Session) (string, error) {
	return s.Readlink(o.Path)
}

func (o *ReadlinkOp) Acceptable(_ string, err error) bool {
	return err == nil
}

// OpenOp implements the open acceptance predicate: "non-null handle AND
// fstat reports st_size != 0; otherwise close the handle and keep
// searching". Closing the rejected handle is done inside Acceptable itself,
// since that's the only place a Distribute branch's rejection is observed.
type OpenOp struct {
	Path  string
	Flags int
}

func (o *OpenOp) Invoke(s *sftpfs.Session) (*sftpfs.FileHandle, error) {
	return s.Open(o.Path, o.Flags)
}

func (o *OpenOp) Acceptable(h *sftpfs.FileHandle, err error) bool {
	if err != nil || h == nil {
		return false
	}
	attrs, ferr := h.Fstat()
	if ferr != nil || attrs.Size == 0 {
		h.Close()
		return false
	}
	return true
}

// OpendirOp implements the opendir acceptance predicate: any non-null
// handle resolves the search.
type OpendirOp struct {
	Path string
}

func (o *OpendirOp) Invoke(s *sftpfs.Session) (*sftpfs.DirHandle, error) {
	return s.Opendir(o.Path)
}

func (o *OpendirOp) Acceptable(h *sftpfs.DirHandle, err error) bool {
	return err == nil && h != nil
}

// StatvfsOp implements the statvfs acceptance predicate: it sums
// f_blocks/f_bfree/f_bavail/f_files/f_ffree/f_favail across every sibling
// and always reports "not yet accepted", so Distribute visits every child.
// The accumulator lives on the op value itself rather than a package-level
// variable (spec.md §9's redesign note), so two concurrent top-level
// Statvfs calls each get their own StatvfsOp and never interfere.
type StatvfsOp struct {
	Path string
	Sum  sftpfs.VFSAttrs
}

func (o *StatvfsOp) Invoke(s *sftpfs.Session) (sftpfs.VFSAttrs, error) {
	v, err := s.Statvfs(o.Path)
	if err != nil {
		return v, err
	}
	o.Sum.Blocks += v.Blocks
	o.Sum.Bfree += v.Bfree
	o.Sum.Bavail += v.Bavail
	o.Sum.Files += v.Files
	o.Sum.Ffree += v.Ffree
	o.Sum.Favail += v.Favail
	return v, nil
}

func (o *StatvfsOp) Acceptable(sftpfs.VFSAttrs, error) bool {
	return false
}
