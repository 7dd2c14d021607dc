// Command arsenal mounts one or more SFTP endpoints, aggregated by a
// mirror/distribute configuration tree, as a single read-only local
// filesystem.
package main

import (
	"fmt"
	"os"
	"strings"

	systemFuse "github.com/anacrolix/fuse"
	"github.com/anacrolix/fuse/fs"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/jdegges/arsenal/internal/config"
	"github.com/jdegges/arsenal/internal/debug"
	"github.com/jdegges/arsenal/internal/errors"
	"github.com/jdegges/arsenal/internal/fuseadapter"
)

func init() {
	// Silence automaxprocs's own log output, matching the teacher's idiom;
	// GOMAXPROCS correctness matters here since the FUSE kernel bridge
	// drives many OS worker threads into the adapter concurrently.
	_, _ = maxprocs.Set()
}

const version = "arsenal 1.0.0"

const usage = `usage: arsenal cfg=<config.xml> [options] <mountpoint>

  cfg=<path>      configuration file (required)
  -o opt[,opt...] mount options forwarded to the kernel bridge
  -V, --version   print version and exit
  -h, --help      print this help and exit
`

// cliArgs is the result of scanning os.Args per spec.md §6's CLI surface:
// a bare cfg=<path> token, a trailing positional mountpoint, and any other
// arguments passed through toward the kernel-bridge mount call.
type cliArgs struct {
	configPath string
	mountPoint string
	mountOpts  []systemFuse.MountOption
}

func parseArgs(args []string) (cliArgs, error) {
	var (
		out        cliArgs
		positional []string
	)

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-V" || a == "--version":
			fmt.Println(version)
			os.Exit(0)
		case a == "-h" || a == "--help":
			fmt.Print(usage)
			os.Exit(0)
		case strings.HasPrefix(a, "cfg="):
			out.configPath = strings.TrimPrefix(a, "cfg=")
		case a == "-o" && i+1 < len(args):
			i++
			out.mountOpts = append(out.mountOpts, mountOptionsFromSpec(args[i])...)
		default:
			positional = append(positional, a)
		}
	}

	if out.configPath == "" {
		return out, errors.Fatal("cfg=<path> is required")
	}
	if len(positional) == 0 {
		return out, errors.Fatal("missing mount point")
	}
	// The last positional argument is the mount point; anything else left
	// over is an argument the original CLI forwarded verbatim to libfuse's
	// generic option parser. anacrolix/fuse has no equivalent untyped
	// passthrough (see DESIGN.md), so unrecognized positionals are logged
	// and otherwise ignored rather than silently dropped.
	out.mountPoint = positional[len(positional)-1]
	for _, p := range positional[:len(positional)-1] {
		debug.Log("ignoring unrecognized argument %q", p)
	}

	return out, nil
}

// mountOptionsFromSpec maps the subset of libfuse -o options arsenal
// understands onto anacrolix/fuse's typed MountOption set; anything else is
// logged, not forwarded, since anacrolix/fuse doesn't expose a raw -o
// passthrough the way the original C binary's libfuse did.
func mountOptionsFromSpec(spec string) []systemFuse.MountOption {
	var opts []systemFuse.MountOption
	for _, opt := range strings.Split(spec, ",") {
		switch strings.TrimSpace(opt) {
		case "allow_other":
			opts = append(opts, systemFuse.AllowOther())
		case "default_permissions":
			opts = append(opts, systemFuse.DefaultPermissions())
		case "":
		default:
			debug.Log("ignoring unsupported mount option %q", opt)
		}
	}
	return opts
}

func main() {
	os.Exit(run())
}

func run() int {
	args, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usage)
		return 1
	}

	debug.Log("main %#v", os.Args)
	defer debug.Close()

	root, err := config.Load(args.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arsenal: %v\n", err)
		return 1
	}
	defer root.Close()

	mountOptions := append([]systemFuse.MountOption{
		systemFuse.ReadOnly(),
		systemFuse.FSName("arsenal"),
	}, args.mountOpts...)

	conn, err := systemFuse.Mount(args.mountPoint, mountOptions...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arsenal: mount: %v\n", err)
		return 1
	}
	defer conn.Close()

	fmt.Println("Successful startup!")
	debug.Log("serving mount at %v", args.mountPoint)

	fsys := fuseadapter.New(root, args.mountPoint)
	if err := fs.Serve(conn, fsys); err != nil {
		fmt.Fprintf(os.Stderr, "arsenal: serve: %v\n", err)
		return 1
	}

	<-conn.Ready
	if err := conn.MountError; err != nil {
		fmt.Fprintf(os.Stderr, "arsenal: %v\n", err)
		return 1
	}

	return 0
}
