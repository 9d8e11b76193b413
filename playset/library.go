package playset

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"
)

// UniversalName is the name of the set holding every known song.
const UniversalName = "U"

type Playset struct {
	Name string
	Root *Tree
}

// Library is the store of named sets. Reads (Flatten, Get, Names) may run
// concurrently; edits take the write lock.
type Library struct {
	mutex sync.RWMutex
	// persistMutex orders writes to the subsets directory. It is taken
	// before mutex, never while holding it.
	persistMutex sync.Mutex
	universal  *Playset
	sets       map[string]*Playset
	subsetsDir string
	memo       *xsync.MapOf[string, ItemSet]
	logger     *log.Entry
}

type LibraryOption func(*Library)

// WithSubsetsDir sets the directory edits are persisted to.
func WithSubsetsDir(dir string) LibraryOption {
	return func(l *Library) {
		l.subsetsDir = dir
	}
}

// WithMemo caches flattened named sets until the next edit.
func WithMemo() LibraryOption {
	return func(l *Library) {
		l.memo = xsync.NewMapOf[string, ItemSet]()
	}
}

func NewLibrary(universal ItemSet, opts ...LibraryOption) *Library {
	if universal == nil {
		universal = ItemSet{}
	}
	l := &Library{
		universal: &Playset{Name: UniversalName, Root: Literal(universal)},
		sets:      make(map[string]*Playset),
		logger: log.WithFields(log.Fields{
			"module": "library",
		}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Universal returns the songs of the universal set. The result must not be
// modified.
func (l *Library) Universal() ItemSet {
	return l.universal.Root.Leaf.Items
}

func (l *Library) SubsetsDir() string {
	return l.subsetsDir
}

// Lookup implements SetResolver. Callers must hold at least the read lock.
func (l *Library) Lookup(name string) (*Tree, bool) {
	if name == UniversalName {
		return l.universal.Root, true
	}
	p, ok := l.sets[name]
	if !ok {
		return nil, false
	}
	return p.Root, true
}

// Flatten evaluates an arbitrary tree against the library.
func (l *Library) Flatten(t *Tree) (ItemSet, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	e := evaluator{sets: l, memo: l.memo}
	return e.flatten(t, map[string]struct{}{})
}

// FlattenSet evaluates the named set.
func (l *Library) FlattenSet(name string) (ItemSet, error) {
	return l.Flatten(Ref(name))
}

// Names lists the universal set followed by every other set in name order.
func (l *Library) Names() []string {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	names := make([]string, 0, len(l.sets)+1)
	for name := range l.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return append([]string{UniversalName}, names...)
}

// Get returns a copy of the named set.
func (l *Library) Get(name string) (*Playset, bool) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	tree, ok := l.Lookup(name)
	if !ok {
		return nil, false
	}
	return &Playset{Name: name, Root: tree.Clone()}, true
}

func (l *Library) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.sets)
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.HasSuffix(name, workInProgressSuffix) {
		return fmt.Errorf("%w: %q ends in %s", ErrInvalidName, name, workInProgressSuffix)
	}
	return CheckName(name)
}

// PushEmptySet adds a new set with an empty literal expression.
func (l *Library) PushEmptySet(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if _, ok := l.Lookup(name); ok {
		return &DuplicateNameError{Name: name}
	}
	l.sets[name] = &Playset{Name: name, Root: Literal(nil)}
	l.invalidate()
	l.logger.Debugf("created empty set %s", name)
	return nil
}

// insert adds a loaded set without any reference checks.
func (l *Library) insert(p *Playset) error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if _, ok := l.Lookup(p.Name); ok {
		return &DuplicateNameError{Name: p.Name}
	}
	l.sets[p.Name] = p
	l.invalidate()
	return nil
}

// Combine replaces the root of target with (root op operand), where operand
// is a reference to another set.
func (l *Library) Combine(target string, op Op, operand string) error {
	if !op.Valid() {
		return fmt.Errorf("%w: %v", ErrUnknownOperator, op)
	}
	l.mutex.Lock()
	defer l.mutex.Unlock()
	p, err := l.editable(target)
	if err != nil {
		return err
	}
	if err := l.checkReference(target, operand); err != nil {
		return err
	}
	p.Root = Operation(op, p.Root, Ref(operand))
	l.invalidate()
	l.logger.Debugf("combined %s with %s (%v)", target, operand, op)
	return nil
}

// SetExpression replaces the whole tree of an existing set. Every reference
// in t must name an existing set and must not lead back to name.
func (l *Library) SetExpression(name string, t *Tree) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	p, err := l.editable(name)
	if err != nil {
		return err
	}
	for _, ref := range t.References() {
		if err := l.checkReference(name, ref); err != nil {
			return err
		}
	}
	p.Root = t.Clone()
	l.invalidate()
	return nil
}

// AddItem puts a song of the universal set into the named set. Literal sets
// gain the item directly; any other expression is wrapped in a union.
func (l *Library) AddItem(name, item string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	p, err := l.editable(name)
	if err != nil {
		return err
	}
	song, ok := l.Universal().Resolve(item)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnresolvedItemName, item)
	}
	if p.Root.IsLiteral() {
		p.Root.Leaf.Items.Add(song)
	} else {
		p.Root = Union(p.Root, LiteralOf(song))
	}
	l.invalidate()
	return nil
}

// Delete drops a set and, when the library persists to disk, its file. Sets
// still referring to it will fail to flatten with ErrUnknownSetReference.
func (l *Library) Delete(name string) error {
	l.persistMutex.Lock()
	defer l.persistMutex.Unlock()
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if _, err := l.editable(name); err != nil {
		return err
	}
	delete(l.sets, name)
	l.invalidate()

	if l.subsetsDir == "" {
		return nil
	}
	path := filepath.Join(l.subsetsDir, name)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return &IOError{Op: "remove", Path: path, Err: err}
	}
	return nil
}

// Persist writes the named set to the subsets directory. Concurrent persists
// are serialized so the file always ends up holding the latest snapshot.
func (l *Library) Persist(name string) error {
	if l.subsetsDir == "" {
		return &IOError{Op: "persist", Path: name, Err: errors.New("library has no subsets directory")}
	}
	l.persistMutex.Lock()
	defer l.persistMutex.Unlock()

	l.mutex.RLock()
	p, ok := l.sets[name]
	var snapshot *Playset
	if ok {
		snapshot = &Playset{Name: p.Name, Root: p.Root.Clone()}
	}
	l.mutex.RUnlock()
	if !ok {
		if name == UniversalName {
			return ErrImmutableUniversal
		}
		return &ReferenceError{Name: name, Err: ErrUnknownSetReference}
	}
	return WritePlayset(snapshot, l.subsetsDir)
}

func (l *Library) editable(name string) (*Playset, error) {
	if name == UniversalName {
		return nil, ErrImmutableUniversal
	}
	p, ok := l.sets[name]
	if !ok {
		return nil, &ReferenceError{Name: name, Err: ErrUnknownSetReference}
	}
	return p, nil
}

// checkReference rejects a reference from set `from` to set `to` if `to` is
// unknown or already reaches `from`.
func (l *Library) checkReference(from, to string) error {
	if _, ok := l.Lookup(to); !ok {
		return &ReferenceError{Name: to, Err: ErrUnknownSetReference}
	}
	if to == from || l.reaches(to, from, map[string]bool{}) {
		return &ReferenceError{Name: to, Err: ErrCyclicReference}
	}
	return nil
}

func (l *Library) reaches(from, target string, seen map[string]bool) bool {
	if seen[from] {
		return false
	}
	seen[from] = true
	tree, ok := l.Lookup(from)
	if !ok {
		return false
	}
	for _, ref := range tree.References() {
		if ref == target || l.reaches(ref, target, seen) {
			return true
		}
	}
	return false
}

func (l *Library) invalidate() {
	if l.memo != nil {
		l.memo.Clear()
	}
}
