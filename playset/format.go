package playset

import (
	"fmt"
	"strings"

	"playset/models"
)

// Control bytes of the persisted format. Operators occupy a contiguous range.
const (
	Separator = 0x01
	SetStart  = 0x02
	SetEnd    = 0x03

	UnionByte        = 0x10
	IntersectionByte = 0x11
	DifferenceByte   = 0x12
)

// ItemResolver maps an item name found in a literal set to its record.
type ItemResolver interface {
	Resolve(name string) (models.Song, bool)
}

func isReserved(c byte) bool {
	return c == Separator || c == SetStart || c == SetEnd ||
		(c >= UnionByte && c <= DifferenceByte)
}

// CheckName reports names that would corrupt the encoding.
func CheckName(name string) error {
	for i := 0; i < len(name); i++ {
		if isReserved(name[i]) {
			return fmt.Errorf("%w: %q at byte %d", ErrReservedCharacter, name, i)
		}
	}
	return nil
}

// Encode serializes a tree in postfix form. Literal items are written in
// name order so that equal trees always encode identically.
func Encode(t *Tree) (string, error) {
	var b strings.Builder
	if err := encode(&b, t); err != nil {
		return "", err
	}
	return b.String(), nil
}

func encode(b *strings.Builder, t *Tree) error {
	if t.IsLeaf() {
		if !t.Leaf.Terminal {
			if err := CheckName(t.Leaf.Name); err != nil {
				return err
			}
			b.WriteString(t.Leaf.Name)
			b.WriteByte(Separator)
			return nil
		}
		b.WriteByte(SetStart)
		for _, name := range t.Leaf.Items.Names() {
			if err := CheckName(name); err != nil {
				return err
			}
			b.WriteString(name)
			b.WriteByte(Separator)
		}
		b.WriteByte(SetEnd)
		return nil
	}
	if !t.Op.Valid() {
		return fmt.Errorf("%w: %v", ErrUnknownOperator, t.Op)
	}
	if err := encode(b, t.Left); err != nil {
		return err
	}
	if err := encode(b, t.Right); err != nil {
		return err
	}
	b.WriteByte(byte(t.Op))
	return nil
}

// Parse reads a postfix-encoded expression. set names the expression in
// errors; items resolves the names listed inside literal sets.
func Parse(set, s string, items ItemResolver) (*Tree, error) {
	var (
		stack      []*Tree
		name       strings.Builder
		collected  ItemSet
		collecting bool
	)
	fail := func(offset int, err error, item string) (*Tree, error) {
		return nil, &ParseError{Set: set, Offset: offset, Item: item, Err: err}
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == Separator && collecting:
			song, ok := items.Resolve(name.String())
			if !ok {
				return fail(i, ErrUnresolvedItemName, name.String())
			}
			collected.Add(song)
			name.Reset()
		case c == Separator:
			stack = append(stack, Ref(name.String()))
			name.Reset()
		case c == SetStart:
			if collecting {
				return fail(i, ErrUnexpectedToken, "")
			}
			collecting = true
			collected = ItemSet{}
		case c == SetEnd:
			if !collecting {
				return fail(i, ErrUnexpectedToken, "")
			}
			if name.Len() > 0 {
				return fail(i, ErrDanglingName, name.String())
			}
			collecting = false
			stack = append(stack, Literal(collected))
			collected = nil
		case c >= UnionByte && c <= DifferenceByte:
			if collecting {
				return fail(i, ErrUnexpectedToken, "")
			}
			if len(stack) < 2 {
				return fail(i, ErrMissingOperands, "")
			}
			right := stack[len(stack)-1]
			left := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			stack = append(stack, Operation(Op(c), left, right))
		default:
			name.WriteByte(c)
		}
	}

	switch {
	case collecting:
		return fail(len(s), ErrUnterminatedLiteralSet, "")
	case name.Len() > 0:
		return fail(len(s), ErrDanglingName, name.String())
	case len(stack) == 0:
		return fail(len(s), ErrEmptyExpression, "")
	case len(stack) > 1:
		return fail(len(s), ErrTrailingOperands, "")
	}
	return stack[0], nil
}
