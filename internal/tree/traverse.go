package tree

import (
	"github.com/jdegges/arsenal/internal/errors"
	"github.com/jdegges/arsenal/internal/sftpfs"
)

// Op is one dispatchable tree-level operation. Invoke runs the operation
// against a single Volume's session; Acceptable decides, given Invoke's
// result, whether a Distribute search should stop here or keep probing
// siblings. This replaces the original implementation's packed five-slot
// args struct plus an arity switch (spec.md §9) with one small interface per
// operation — no unsafe casts, no nargs dispatch.
type Op[R any] interface {
	Invoke(s *sftpfs.Session) (R, error)
	Acceptable(r R, err error) bool
}

// Traverse walks n per its Kind and op's semantics, exactly as spec.md §4.3:
//
//   - Volume invokes op once and returns its result, whether or not it's
//     acceptable -- the caller's predicate decides that.
//   - Mirror selects one child by round-robin and returns its result without
//     consulting any sibling.
//   - Distribute probes children in declaration order, returning the first
//     acceptable result; if none is acceptable it returns the last child's
//     result.
func Traverse[R any](n *Node, op Op[R]) (R, error) {
	switch n.Kind {
	case KindVolume:
		return op.Invoke(n.Session)

	case KindMirror:
		child := n.nextMirrorChild()
		return Traverse(child, op)

	case KindDistribute:
		var (
			result R
			err    error
		)
		for _, child := range n.Children {
			result, err = Traverse(child, op)
			if op.Acceptable(result, err) {
				return result, err
			}
		}
		return result, err

	default:
		var zero R
		return zero, errors.Errorf("tree: node has unknown kind %v", n.Kind)
	}
}
