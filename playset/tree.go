package playset

import (
	"fmt"
	"sort"
	"strings"

	"playset/models"
)

// Op is a binary set operator. Its value is the byte that encodes it.
type Op byte

const (
	OpUnion        Op = Op(UnionByte)
	OpIntersection Op = Op(IntersectionByte)
	OpDifference   Op = Op(DifferenceByte)
)

func (op Op) Valid() bool {
	return op >= OpUnion && op <= OpDifference
}

func (op Op) String() string {
	switch op {
	case OpUnion:
		return "union"
	case OpIntersection:
		return "intersection"
	case OpDifference:
		return "difference"
	}
	return fmt.Sprintf("Op(%#x)", byte(op))
}

func (op Op) symbol() string {
	switch op {
	case OpUnion:
		return "|"
	case OpIntersection:
		return "&"
	case OpDifference:
		return "-"
	}
	return "?"
}

// ParseOp accepts the operator names used by the HTTP API.
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(s) {
	case "union", "|":
		return OpUnion, nil
	case "intersection", "&":
		return OpIntersection, nil
	case "difference", "-":
		return OpDifference, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperator, s)
}

// Node is a leaf operand. A terminal node holds literal items, a
// non-terminal node only the name of another set, looked up when the tree is
// flattened.
type Node struct {
	Terminal bool
	Items    ItemSet
	Name     string
}

// Tree is either a leaf (Leaf != nil) or a binary operation over two
// exclusively owned subtrees.
type Tree struct {
	Leaf  *Node
	Op    Op
	Left  *Tree
	Right *Tree
}

func Literal(items ItemSet) *Tree {
	if items == nil {
		items = ItemSet{}
	}
	return &Tree{Leaf: &Node{Terminal: true, Items: items}}
}

func LiteralOf(songs ...models.Song) *Tree {
	return Literal(NewItemSet(songs...))
}

func Ref(name string) *Tree {
	return &Tree{Leaf: &Node{Name: name}}
}

func Operation(op Op, left, right *Tree) *Tree {
	return &Tree{Op: op, Left: left, Right: right}
}

func Union(left, right *Tree) *Tree        { return Operation(OpUnion, left, right) }
func Intersection(left, right *Tree) *Tree { return Operation(OpIntersection, left, right) }
func Difference(left, right *Tree) *Tree   { return Operation(OpDifference, left, right) }

func (t *Tree) IsLeaf() bool {
	return t.Leaf != nil
}

func (t *Tree) IsLiteral() bool {
	return t.Leaf != nil && t.Leaf.Terminal
}

// Clone deep-copies the tree, including literal item sets.
func (t *Tree) Clone() *Tree {
	if t == nil {
		return nil
	}
	if t.IsLeaf() {
		n := *t.Leaf
		if n.Terminal {
			n.Items = n.Items.Clone()
		}
		return &Tree{Leaf: &n}
	}
	return Operation(t.Op, t.Left.Clone(), t.Right.Clone())
}

// References lists the distinct set names the tree refers to, sorted.
func (t *Tree) References() []string {
	seen := map[string]struct{}{}
	t.walk(func(n *Node) {
		if !n.Terminal {
			seen[n.Name] = struct{}{}
		}
	})
	refs := make([]string, 0, len(seen))
	for name := range seen {
		refs = append(refs, name)
	}
	sort.Strings(refs)
	return refs
}

func (t *Tree) walk(fn func(*Node)) {
	if t.IsLeaf() {
		fn(t.Leaf)
		return
	}
	t.Left.walk(fn)
	t.Right.walk(fn)
}

// String renders the tree in infix form, e.g. "(X | {c.mp3})".
func (t *Tree) String() string {
	var b strings.Builder
	t.format(&b)
	return b.String()
}

func (t *Tree) format(b *strings.Builder) {
	if t.IsLeaf() {
		if !t.Leaf.Terminal {
			b.WriteString(t.Leaf.Name)
			return
		}
		b.WriteString("{")
		b.WriteString(strings.Join(t.Leaf.Items.Names(), ", "))
		b.WriteString("}")
		return
	}
	b.WriteString("(")
	t.Left.format(b)
	b.WriteString(" ")
	b.WriteString(t.Op.symbol())
	b.WriteString(" ")
	t.Right.format(b)
	b.WriteString(")")
}
