// Package config parses the arsenal XML configuration document into an
// internal/tree.Node and establishes every volume's internal/sftpfs.Session
// concurrently (spec.md §6/§5 — C5, the configuration loader).
package config

import (
	"encoding/xml"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/dustin/go-humanize"

	"github.com/jdegges/arsenal/internal/debug"
	"github.com/jdegges/arsenal/internal/errors"
	"github.com/jdegges/arsenal/internal/sftpfs"
	"github.com/jdegges/arsenal/internal/tree"
)

// xmlDocument mirrors the <arsenal> root element. Children are any mix of
// <mirror>, <distribute> and <volume>, matched positionally so sibling
// ordering is preserved -- spec.md §4.3 depends on declaration order for
// both Mirror's initial cursor position and Distribute's probe order.
type xmlDocument struct {
	XMLName xml.Name     `xml:"arsenal"`
	Nodes   []xmlNodeRef `xml:",any"`
}

// xmlNodeRef captures one child element generically so unknown element
// names inside an aggregator are silently ignored, per spec.md §6, rather
// than rejected by a strict schema.
type xmlNodeRef struct {
	XMLName xml.Name
	Inner   []byte `xml:",innerxml"`
}

type xmlVolume struct {
	Name       string `xml:"name"`
	Root       string `xml:"root"`
	Address    string `xml:"address"`
	Port       string `xml:"port"`
	PublicKey  string `xml:"public_key"`
	PrivateKey string `xml:"private_key"`
	Username   string `xml:"username"`
	Passphrase string `xml:"passphrase"`
}

type xmlAggregator struct {
	Nodes []xmlNodeRef `xml:",any"`
}

// VolumeConfig is the immutable-after-load descriptor for one SFTP
// endpoint, spec.md §3's "Volume descriptor".
type VolumeConfig struct {
	Name       string
	Root       string
	Address    string
	Port       string
	Username   string
	PublicKey  string
	PrivateKey string
	Passphrase string
}

const defaultPort = "22"

// parsedNode is the pure, I/O-free result of walking the XML document: a
// shape identical to tree.Node but without any live session, so parsing and
// dialing stay separate passes.
type parsedNode struct {
	kind     tree.Kind
	name     string
	cfg      VolumeConfig // KindVolume only
	children []*parsedNode
}

// Load reads and parses path, dials every volume's session concurrently,
// and returns the resulting tree root. On any load-time or dial-time
// failure the tree built so far is torn down (sessions already
// established are closed) and the error is wrapped in errors.Fatal,
// matching spec.md §7's "InvalidConfiguration -- load-time, aborts mount".
func Load(path string) (*tree.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Fatalf("read config %v: %v", path, err)
	}

	var doc xmlDocument
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Fatalf("parse config %v: %v", path, err)
	}

	roots := filterKnown(doc.Nodes)
	if len(roots) != 1 {
		return nil, errors.Fatalf("config %v: <arsenal> must contain exactly one child, found %d", path, len(roots))
	}

	parsed, err := parseNode(roots[0])
	if err != nil {
		return nil, err
	}

	root, volumes, err := buildTree(parsed)
	if err != nil {
		return nil, err
	}

	if err := dialAll(volumes); err != nil {
		root.Close()
		return nil, err
	}

	debug.Log("config %v: tree built, all volumes dialed", path)
	return root, nil
}

// filterKnown drops any element whose name is not mirror/distribute/volume.
func filterKnown(refs []xmlNodeRef) []xmlNodeRef {
	known := make([]xmlNodeRef, 0, len(refs))
	for _, r := range refs {
		switch r.XMLName.Local {
		case "mirror", "distribute", "volume":
			known = append(known, r)
		}
	}
	return known
}

// parseNode recursively turns one XML element into a parsedNode. It never
// touches the network; dialing happens in a later pass over the whole tree.
func parseNode(ref xmlNodeRef) (*parsedNode, error) {
	switch ref.XMLName.Local {
	case "volume":
		var v xmlVolume
		if err := xml.Unmarshal(wrapInner(ref), &v); err != nil {
			return nil, errors.Fatalf("parse volume: %v", err)
		}
		return &parsedNode{kind: tree.KindVolume, name: v.Name, cfg: volumeConfigFrom(v)}, nil

	case "mirror", "distribute":
		var agg xmlAggregator
		if err := xml.Unmarshal(wrapInner(ref), &agg); err != nil {
			return nil, errors.Fatalf("parse %v: %v", ref.XMLName.Local, err)
		}
		children, err := parseChildren(agg.Nodes)
		if err != nil {
			return nil, err
		}
		kind := tree.KindMirror
		if ref.XMLName.Local == "distribute" {
			kind = tree.KindDistribute
		}
		return &parsedNode{kind: kind, name: ref.XMLName.Local, children: children}, nil

	default:
		return nil, errors.Fatalf("unexpected element <%v> at tree root", ref.XMLName.Local)
	}
}

func parseChildren(refs []xmlNodeRef) ([]*parsedNode, error) {
	known := filterKnown(refs)
	children := make([]*parsedNode, 0, len(known))
	for _, r := range known {
		n, err := parseNode(r)
		if err != nil {
			return nil, err
		}
		children = append(children, n)
	}
	return children, nil
}

func wrapInner(ref xmlNodeRef) []byte {
	open := "<" + ref.XMLName.Local + ">"
	closeTag := "</" + ref.XMLName.Local + ">"
	b := make([]byte, 0, len(open)+len(ref.Inner)+len(closeTag))
	b = append(b, open...)
	b = append(b, ref.Inner...)
	b = append(b, closeTag...)
	return b
}

func volumeConfigFrom(v xmlVolume) VolumeConfig {
	port := v.Port
	if port == "" {
		port = defaultPort
	}
	return VolumeConfig{
		Name:       v.Name,
		Root:       v.Root,
		Address:    v.Address,
		Port:       port,
		Username:   v.Username,
		PublicKey:  v.PublicKey,
		PrivateKey: v.PrivateKey,
		Passphrase: v.Passphrase,
	}
}

// pendingVolume pairs a not-yet-dialed tree.Node with the config needed to
// dial it.
type pendingVolume struct {
	node *tree.Node
	cfg  VolumeConfig
}

// buildTree turns a parsedNode tree into a tree.Node tree. Volume nodes are
// built with a nil Session; buildTree also returns the flat list of
// volumes so the caller can dial them concurrently in one pass.
func buildTree(p *parsedNode) (*tree.Node, []pendingVolume, error) {
	switch p.kind {
	case tree.KindVolume:
		n := tree.NewVolume(p.name, nil)
		return n, []pendingVolume{{node: n, cfg: p.cfg}}, nil

	case tree.KindMirror, tree.KindDistribute:
		children := make([]*tree.Node, 0, len(p.children))
		var volumes []pendingVolume
		for _, c := range p.children {
			cn, cv, err := buildTree(c)
			if err != nil {
				return nil, nil, err
			}
			children = append(children, cn)
			volumes = append(volumes, cv...)
		}
		var n *tree.Node
		var err error
		if p.kind == tree.KindMirror {
			n, err = tree.NewMirror(p.name, children)
		} else {
			n, err = tree.NewDistribute(p.name, children)
		}
		if err != nil {
			return nil, nil, err
		}
		return n, volumes, nil

	default:
		return nil, nil, errors.Errorf("config: parsedNode has unknown kind %v", p.kind)
	}
}

// dialAll establishes a Session for every pending volume concurrently via
// errgroup.Group: each volume's SSH handshake is an independent blocking
// network call with no ordering dependency on its siblings before the
// mount is ready to serve.
func dialAll(volumes []pendingVolume) error {
	var g errgroup.Group
	for _, v := range volumes {
		v := v
		g.Go(func() error { return dialVolume(v) })
	}
	return g.Wait()
}

func dialVolume(p pendingVolume) error {
	debug.Log("dialing volume %v at %v:%v", p.cfg.Name, p.cfg.Address, p.cfg.Port)
	session, err := sftpfs.Dial(sftpfs.Config{
		Name:       p.cfg.Name,
		Address:    p.cfg.Address + ":" + p.cfg.Port,
		Username:   p.cfg.Username,
		PublicKey:  p.cfg.PublicKey,
		PrivateKey: p.cfg.PrivateKey,
		Passphrase: p.cfg.Passphrase,
		Root:       p.cfg.Root,
	})
	if err != nil {
		return errors.Fatalf("volume %v: %v", p.cfg.Name, err)
	}
	p.node.Session = session

	if vfs, serr := session.Statvfs("/"); serr == nil {
		debug.Log("volume %v ready, %v free", p.cfg.Name, humanize.Bytes(vfs.Bfree*vfs.Bsize))
	}
	return nil
}
