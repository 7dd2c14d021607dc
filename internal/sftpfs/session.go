// Package sftpfs implements the jailed, single-flight SFTP session that
// backs one Volume (spec.md §3/§4.1). Every exported operation serialises on
// the session's mutex, mirroring the "one outstanding request per session"
// constraint: the original sftp.c never had more than one libssh2 call in
// flight on a given connection, and neither does this.
package sftpfs

import (
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/pkg/sftp"

	"github.com/jdegges/arsenal/internal/debug"
	"github.com/jdegges/arsenal/internal/errors"
)

// Config describes how to reach one Volume's remote endpoint and which
// subtree of it the session is jailed to.
type Config struct {
	Name       string // volume name, for logging only
	Address    string // host:port
	Username   string
	PublicKey  string // path to a public key file, optional
	PrivateKey string // path to a private key file
	Passphrase string // passphrase protecting PrivateKey, optional
	Root       string // absolute remote path the volume is jailed to; "" means "/"

	// Timeout bounds the initial TCP dial and the SSH handshake.
	Timeout time.Duration
}

// Session is a single authenticated SFTP connection jailed to Config.Root.
// All paths passed to its methods are absolute and relative to the jail
// root, never to the remote filesystem's own root.
type Session struct {
	mu sync.Mutex

	name   string
	jail   string // normalised, no trailing slash unless equal to "/"
	client *sftp.Client
	ssh    *ssh.Client
	conn   net.Conn

	closed bool
}

// Dial establishes the SSH connection, opens the SFTP subsystem on it and
// returns a Session jailed to cfg.Root. It is grounded on rclone's
// backend/sftp key-loading idiom: a public key signer built directly from a
// private key file (optionally passphrase-protected), rather than the
// exec.Command("ssh", ...) subprocess approach restic's sftp backend uses,
// since spec.md requires driving the SSH handshake directly from the
// volume's configured key material.
func Dial(cfg Config) (*Session, error) {
	signer, err := loadSigner(cfg.PrivateKey, cfg.Passphrase)
	if err != nil {
		return nil, errors.Wrap(err, "load private key")
	}

	clientCfg := &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.Timeout,
	}

	debug.Log("dialing volume %v at %v", cfg.Name, cfg.Address)
	conn, err := net.DialTimeout("tcp", cfg.Address, cfg.Timeout)
	if err != nil {
		return nil, errors.Wrap(err, "dial")
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, cfg.Address, clientCfg)
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "ssh handshake")
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, errors.Wrap(err, "start sftp subsystem")
	}

	s := NewSession(cfg.Name, cfg.Root, client)
	s.ssh = sshClient
	s.conn = conn

	debug.Log("volume %v jailed at %q", cfg.Name, s.jail)
	return s, nil
}

// NewSession wraps an already-open *sftp.Client as a Session jailed to
// root. Dial is the production path (it also owns the SSH/TCP layers
// underneath the client); NewSession exists directly so tests -- and
// anything else driving pkg/sftp over a connection it set up itself, such
// as an in-process client/server pipe -- can build a Session without a real
// network dial.
func NewSession(name, root string, client *sftp.Client) *Session {
	return &Session{
		name:   name,
		jail:   normalizeJail(root),
		client: client,
	}
}

func loadSigner(keyPath, passphrase string) (ssh.Signer, error) {
	key, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, errors.Wrap(err, "read private key")
	}

	if passphrase != "" {
		signer, err := ssh.ParsePrivateKeyWithPassphrase(key, []byte(passphrase))
		if err != nil {
			return nil, errors.Wrap(err, "parse private key")
		}
		return signer, nil
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}
	return signer, nil
}

func normalizeJail(root string) string {
	if root == "" {
		return "/"
	}
	if len(root) > 1 && strings.HasSuffix(root, "/") {
		root = strings.TrimRight(root, "/")
	}
	return root
}

// joinJail concatenates the jail with p, which must be absolute (start with
// "/"). This mirrors the original sftp_tree.c's snprintf(jpath, "%s%s",
// jail, path): jail "/" contributes nothing so the result stays a single
// leading slash.
func (s *Session) joinJail(p string) string {
	if s.jail == "/" {
		return p
	}
	return s.jail + p
}

// hasJailPrefix reports whether resolved names a path at or below jail. A
// naive strings.HasPrefix(resolved, jail) is wrong here: jail "/data" would
// also match "/data-other", which is outside the jail. The byte right after
// the jail prefix must be '/' or the match must be exact.
func hasJailPrefix(jail, resolved string) bool {
	if jail == "/" {
		return true
	}
	if resolved == jail {
		return true
	}
	return strings.HasPrefix(resolved, jail) && resolved[len(jail)] == '/'
}

// resolve validates that p, joined onto the jail, names something inside the
// jail and returns the joined (unresolved) path to issue the real SFTP call
// against. Must be called with s.mu held.
func (s *Session) resolve(p string) (string, error) {
	jpath := s.joinJail(p)

	resolved, err := s.client.RealPath(jpath)
	if err != nil {
		return "", classify(err)
	}

	if !hasJailPrefix(s.jail, resolved) {
		debug.Log("volume %v: %q resolved to %q, outside jail %q", s.name, jpath, resolved, s.jail)
		return "", ErrPermissionDenied
	}

	return jpath, nil
}

// rebase rewrites a fully resolved remote path, known to be inside the
// jail, onto the volume's local mount point for presentation to FUSE
// callers (e.g. the result of Realpath).
func (s *Session) rebase(mountPoint, resolved string) string {
	if s.jail == "/" {
		if resolved == "/" {
			return mountPoint
		}
		return mountPoint + resolved
	}
	if resolved == s.jail {
		return mountPoint
	}
	return mountPoint + resolved[len(s.jail):]
}

// Lstat returns the attributes of p without following a trailing symlink.
func (s *Session) Lstat(p string) (Attrs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jpath, err := s.resolve(p)
	if err != nil {
		return Attrs{}, err
	}

	fi, err := s.client.Lstat(jpath)
	if err != nil {
		return Attrs{}, classify(err)
	}
	return attrsFromFileInfo(fi), nil
}

// Stat returns the attributes of p, following a trailing symlink.
func (s *Session) Stat(p string) (Attrs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jpath, err := s.resolve(p)
	if err != nil {
		return Attrs{}, err
	}

	fi, err := s.client.Stat(jpath)
	if err != nil {
		return Attrs{}, classify(err)
	}
	return attrsFromFileInfo(fi), nil
}

// Readlink returns the target of the symlink at p, unaltered: the target is
// whatever the remote stored, which may itself escape the jail. Callers are
// expected to re-resolve it as a fresh lookup rather than trust it directly.
func (s *Session) Readlink(p string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jpath, err := s.resolve(p)
	if err != nil {
		return "", err
	}

	target, err := s.client.ReadLink(jpath)
	if err != nil {
		return "", classify(err)
	}
	return target, nil
}

// Realpath resolves p and rewrites the jail prefix of the result onto
// mountPoint, so the caller can present a path meaningful to the local FUSE
// mount rather than the remote filesystem.
func (s *Session) Realpath(p, mountPoint string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jpath, err := s.resolve(p)
	if err != nil {
		return "", err
	}

	resolved, err := s.client.RealPath(jpath)
	if err != nil {
		return "", classify(err)
	}
	if !hasJailPrefix(s.jail, resolved) {
		return "", ErrPermissionDenied
	}

	return s.rebase(mountPoint, resolved), nil
}

// allowedOpenFlags is the subset of os.O_* flags a read-only mount ever
// issues. Anything else -- O_WRONLY, O_RDWR, O_CREATE, O_EXCL, O_TRUNC,
// O_SYNC -- is rejected with ErrInvalidArgument before it ever reaches the
// wire.
const allowedOpenFlags = os.O_RDONLY | os.O_APPEND

// Open opens p for reading. flags must be a combination of os.O_RDONLY and
// os.O_APPEND; anything implying write access is rejected.
func (s *Session) Open(p string, flags int) (*FileHandle, error) {
	if flags&^allowedOpenFlags != 0 {
		return nil, ErrInvalidArgument
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jpath, err := s.resolve(p)
	if err != nil {
		return nil, err
	}

	f, err := s.client.OpenFile(jpath, flags)
	if err != nil {
		return nil, classify(err)
	}

	return &FileHandle{session: s, file: f}, nil
}

// Statvfs returns filesystem-level statistics for the volume containing p.
func (s *Session) Statvfs(p string) (VFSAttrs, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jpath, err := s.resolve(p)
	if err != nil {
		return VFSAttrs{}, err
	}

	st, err := s.client.StatVFS(jpath)
	if err != nil {
		return VFSAttrs{}, classify(err)
	}
	return vfsAttrsFromStatVFS(st), nil
}

// Opendir opens p for directory listing.
func (s *Session) Opendir(p string) (*DirHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jpath, err := s.resolve(p)
	if err != nil {
		return nil, err
	}

	entries, err := s.client.ReadDir(jpath)
	if err != nil {
		return nil, classify(err)
	}

	return &DirHandle{session: s, entries: entries}, nil
}

// Close tears down the SFTP subsystem and, for a Session built by Dial, the
// underlying SSH connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	cerr := s.client.Close()
	var serr error
	if s.ssh != nil {
		serr = s.ssh.Close()
	}
	debug.Log("volume %v: session closed, client err %v, ssh err %v", s.name, cerr, serr)
	if cerr != nil {
		return classify(cerr)
	}
	if serr != nil {
		return classify(serr)
	}
	return nil
}

// FileHandle is an open remote file bound to the session that opened it.
// Reads and Fstat calls go through the owning session's mutex, same as
// every other operation, so a busy Read blocks concurrent traversal of the
// same Volume but never of a different one.
type FileHandle struct {
	session *Session
	file    *sftp.File
	offset  int64
}

// ReadAt reads len(buf) bytes starting at off, matching io.ReaderAt. A
// short read at end of file returns (n, io.EOF), never a separate
// "EndOfFile" error kind -- see ErrEndOfFile's doc comment.
func (h *FileHandle) ReadAt(buf []byte, off int64) (int, error) {
	h.session.mu.Lock()
	defer h.session.mu.Unlock()

	if off != h.offset {
		if _, err := h.file.Seek(off, io.SeekStart); err != nil {
			return 0, classify(err)
		}
		h.offset = off
	}

	n, err := io.ReadFull(h.file, buf)
	h.offset += int64(n)
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err != nil && err != io.EOF {
		err = classify(err)
	}
	return n, err
}

// Fstat returns the attributes of the handle's open file.
func (h *FileHandle) Fstat() (Attrs, error) {
	h.session.mu.Lock()
	defer h.session.mu.Unlock()

	fi, err := h.file.Stat()
	if err != nil {
		return Attrs{}, classify(err)
	}
	return attrsFromFileInfo(fi), nil
}

// Close releases the handle. It does not close the session.
func (h *FileHandle) Close() error {
	h.session.mu.Lock()
	defer h.session.mu.Unlock()

	return classify(h.file.Close())
}

// DirHandle is a directory listing bound to the session that opened it. The
// wire protocol batches SSH_FXP_READDIR responses and pkg/sftp's ReadDir
// already drains them into a slice, so Opendir performs the one network
// round trip up front; Next then just walks the cached slice, which
// preserves the opendir/readdir/closedir state machine spec.md §4.1
// describes without a per-entry round trip pkg/sftp doesn't expose anyway.
type DirHandle struct {
	session *Session
	entries []os.FileInfo
	idx     int
}

// Next returns the next directory entry's name and attributes, or
// io.EOF once the directory is exhausted.
func (d *DirHandle) Next() (string, Attrs, error) {
	d.session.mu.Lock()
	defer d.session.mu.Unlock()

	if d.idx >= len(d.entries) {
		return "", Attrs{}, io.EOF
	}
	fi := d.entries[d.idx]
	d.idx++
	return fi.Name(), attrsFromFileInfo(fi), nil
}

// Close releases the handle. It does not close the session.
func (d *DirHandle) Close() error {
	d.session.mu.Lock()
	defer d.session.mu.Unlock()

	d.entries = nil
	return nil
}
