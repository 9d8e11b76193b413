package playset

import (
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// SetResolver looks up the tree of a named set.
type SetResolver interface {
	Lookup(name string) (*Tree, bool)
}

// Flatten evaluates t into the concrete set of songs it denotes. Named
// references are resolved through sets; a reference that leads back to a set
// already being evaluated fails with ErrCyclicReference.
func Flatten(t *Tree, sets SetResolver) (ItemSet, error) {
	e := evaluator{sets: sets}
	return e.flatten(t, map[string]struct{}{})
}

type evaluator struct {
	sets SetResolver
	// memo caches flattened named sets; nil disables caching.
	memo *xsync.MapOf[string, ItemSet]
}

func (e *evaluator) flatten(t *Tree, visiting map[string]struct{}) (ItemSet, error) {
	if t.IsLeaf() {
		if t.Leaf.Terminal {
			return t.Leaf.Items.Clone(), nil
		}
		return e.resolve(t.Leaf.Name, visiting)
	}

	left, err := e.flatten(t.Left, visiting)
	if err != nil {
		return nil, err
	}
	right, err := e.flatten(t.Right, visiting)
	if err != nil {
		return nil, err
	}
	switch t.Op {
	case OpUnion:
		return left.Union(right), nil
	case OpIntersection:
		return left.Intersection(right), nil
	case OpDifference:
		return left.Difference(right), nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownOperator, t.Op)
}

func (e *evaluator) resolve(name string, visiting map[string]struct{}) (ItemSet, error) {
	if _, ok := visiting[name]; ok {
		return nil, &ReferenceError{Name: name, Err: ErrCyclicReference}
	}
	if e.memo != nil {
		if items, ok := e.memo.Load(name); ok {
			return items.Clone(), nil
		}
	}
	tree, ok := e.sets.Lookup(name)
	if !ok {
		return nil, &ReferenceError{Name: name, Err: ErrUnknownSetReference}
	}

	visiting[name] = struct{}{}
	items, err := e.flatten(tree, visiting)
	delete(visiting, name)
	if err != nil {
		return nil, err
	}
	if e.memo != nil {
		e.memo.Store(name, items.Clone())
	}
	return items, nil
}
