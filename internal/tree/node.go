// Package tree implements the aggregation tree (spec components C2/C3): the
// Volume/Mirror/Distribute node graph and the generic traversal engine that
// dispatches one operation down it, combining child results through a
// per-operation acceptance predicate.
package tree

import (
	"sync/atomic"

	"github.com/jdegges/arsenal/internal/errors"
	"github.com/jdegges/arsenal/internal/sftpfs"
)

// Kind tags which variant a Node is.
type Kind int

const (
	KindVolume Kind = iota
	KindMirror
	KindDistribute
)

func (k Kind) String() string {
	switch k {
	case KindVolume:
		return "volume"
	case KindMirror:
		return "mirror"
	case KindDistribute:
		return "distribute"
	default:
		return "unknown"
	}
}

// Node is one entry in the aggregation tree. Exactly one of Session (Volume)
// or Children (Mirror/Distribute) is populated, per spec.md §3 invariant 1.
type Node struct {
	Kind     Kind
	Name     string // volume name, or the aggregator's own label for logging
	Session  *sftpfs.Session
	Children []*Node

	cursor uint64 // Mirror only; advanced with atomic.AddUint64, never locked
}

// NewVolume wraps a session as a leaf node.
func NewVolume(name string, session *sftpfs.Session) *Node {
	return &Node{Kind: KindVolume, Name: name, Session: session}
}

// NewMirror builds an interior node whose children are equivalent replicas.
// Per spec.md §3 invariant 2, an empty children list is a load-time error.
func NewMirror(name string, children []*Node) (*Node, error) {
	if len(children) == 0 {
		return nil, errors.Fatal("mirror " + name + " has no children")
	}
	return &Node{Kind: KindMirror, Name: name, Children: children}, nil
}

// NewDistribute builds an interior node whose children hold disjoint data.
func NewDistribute(name string, children []*Node) (*Node, error) {
	if len(children) == 0 {
		return nil, errors.Fatal("distribute " + name + " has no children")
	}
	return &Node{Kind: KindDistribute, Name: name, Children: children}, nil
}

// nextMirrorChild returns the child selected by the next round-robin turn.
// The cursor is advanced with a plain atomic add: spec.md §5 tolerates races
// here in exchange for not paying a lock on every dispatch.
func (n *Node) nextMirrorChild() *Node {
	i := atomic.AddUint64(&n.cursor, 1) - 1
	return n.Children[i%uint64(len(n.Children))]
}

// Close tears down every session reachable from n, post-order, matching
// spec.md §3 invariant 5 ("the root is ... destroyed in post-order").
func (n *Node) Close() error {
	var firstErr error
	for _, c := range n.Children {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if n.Kind == KindVolume && n.Session != nil {
		if err := n.Session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
