package sftpfs

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/sftp"
)

// testSession wires a Session directly to an in-process pkg/sftp client/server
// pair connected over io.Pipe, following pkg/sftp's own server_test.go
// pattern, rather than dialing a real SSH server for unit tests.
func testSession(t *testing.T, jail string) *Session {
	t.Helper()

	cr, sw := io.Pipe()
	sr, cw := io.Pipe()

	server, err := sftp.NewServer(struct {
		io.Reader
		io.WriteCloser
	}{sr, sw})
	if err != nil {
		t.Fatalf("sftp.NewServer: %v", err)
	}
	go server.Serve()
	t.Cleanup(func() { server.Close() })

	client, err := sftp.NewClientPipe(cr, cw)
	if err != nil {
		t.Fatalf("sftp.NewClientPipe: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return NewSession("test", jail, client)
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestSessionStatAndOpen(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "file.txt"), "hello world")

	s := testSession(t, dir)

	attrs, err := s.Stat("/file.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if attrs.Size != int64(len("hello world")) {
		t.Fatalf("Size = %d, want %d", attrs.Size, len("hello world"))
	}

	fh, err := s.Open("/file.txt", os.O_RDONLY)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fh.Close()

	buf := make([]byte, 5)
	n, err := fh.ReadAt(buf, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("ReadAt = %q, want %q", buf[:n], "hello")
	}

	buf = make([]byte, 32)
	n, err = fh.ReadAt(buf, 6)
	if err != io.EOF && err != nil {
		t.Fatalf("ReadAt at tail: %v", err)
	}
	if string(buf[:n]) != "world" {
		t.Fatalf("ReadAt tail = %q, want %q", buf[:n], "world")
	}
}

func TestSessionOpenRejectsWriteFlags(t *testing.T) {
	dir := t.TempDir()
	s := testSession(t, dir)

	if _, err := s.Open("/new.txt", os.O_WRONLY|os.O_CREATE); err != ErrInvalidArgument {
		t.Fatalf("Open with write flags: got %v, want ErrInvalidArgument", err)
	}
}

func TestSessionOpendirLists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "a")
	writeFile(t, filepath.Join(dir, "b.txt"), "b")

	s := testSession(t, dir)

	dh, err := s.Opendir("/")
	if err != nil {
		t.Fatalf("Opendir: %v", err)
	}
	defer dh.Close()

	names := map[string]bool{}
	for {
		name, _, err := dh.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		names[name] = true
	}

	if !names["a.txt"] || !names["b.txt"] {
		t.Fatalf("Opendir listing = %v, missing expected entries", names)
	}
}

// TestSessionRejectsPathEscape drives Session.resolve end-to-end through a
// real client/server round trip, rather than unit-testing hasJailPrefix in
// isolation, using a ".." traversal rather than an actual symlink: pkg/sftp's
// plain Server answers SSH_FXP_REALPATH with a purely lexical
// filepath.Abs+Clean of the requested path (it never calls os.Readlink or
// filepath.EvalSymlinks), so a real on-disk symlink pointing outside the
// jail would come back unresolved -- still naming a path inside the jail --
// and this harness could never observe the rejection it's supposed to
// trigger. A ".." escape is resolved by that same lexical Clean, so it
// exercises the identical resolve/hasJailPrefix boundary check spec.md's
// symlink-escape guard relies on (§5(b), Property 5, Scenario S5): on a real
// SFTP server, RealPath does follow symlinks server-side, and an escaping
// symlink would surface to resolve() exactly the way this escaping ".."
// path does here.
func TestSessionRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "file.txt"), "hello world")

	s := testSession(t, dir)

	escape := "/../../../../../../../../../../../../etc/passwd"

	if _, err := s.Lstat(escape); err != ErrPermissionDenied {
		t.Fatalf("Lstat(%q) = %v, want ErrPermissionDenied", escape, err)
	}
	if _, err := s.Stat(escape); err != ErrPermissionDenied {
		t.Fatalf("Stat(%q) = %v, want ErrPermissionDenied", escape, err)
	}
	if _, err := s.Open(escape, os.O_RDONLY); err != ErrPermissionDenied {
		t.Fatalf("Open(%q) = %v, want ErrPermissionDenied", escape, err)
	}

	// The jail itself must still be reachable -- the guard rejects escapes,
	// not the volume's own root.
	if _, err := s.Lstat("/file.txt"); err != nil {
		t.Fatalf("Lstat(/file.txt) after escape attempt: %v", err)
	}
}

// TestSessionReadlink exercises Session.Readlink (internal/sftpfs/session.go)
// directly, without going through the tree layer, since readlink is one of
// the seven required C1 operations (spec.md:60).
func TestSessionReadlink(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "target.txt"), "hi")
	if err := os.Symlink(filepath.Join(dir, "target.txt"), filepath.Join(dir, "link")); err != nil {
		t.Fatalf("Symlink: %v", err)
	}

	s := testSession(t, dir)

	target, err := s.Readlink("/link")
	if err != nil {
		t.Fatalf("Readlink: %v", err)
	}
	if target != filepath.Join(dir, "target.txt") {
		t.Fatalf("Readlink = %q, want %q", target, filepath.Join(dir, "target.txt"))
	}
}

func TestHasJailPrefix(t *testing.T) {
	cases := []struct {
		jail, resolved string
		want           bool
	}{
		{"/", "/anything", true},
		{"/data", "/data", true},
		{"/data", "/data/sub", true},
		{"/data", "/data-other", false},
		{"/data", "/other", false},
	}
	for _, c := range cases {
		if got := hasJailPrefix(c.jail, c.resolved); got != c.want {
			t.Errorf("hasJailPrefix(%q, %q) = %v, want %v", c.jail, c.resolved, got, c.want)
		}
	}
}
