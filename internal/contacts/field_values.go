package contacts

import (
	"fmt"
	"slices"
)

// FieldValueList is an ordered, de-duplicated list of FieldValues keyed by
// raw value. Null values are never stored.
//
// A list obtained from a Contact is stamped with that contact and field
// name; every mutation re-indexes the contact in its Book.
type FieldValueList struct {
	items []*FieldValue
	byRaw map[string]*FieldValue

	contact *Contact
	field   string
}

// NewFieldValueList builds a detached list from raw strings or *FieldValues.
func NewFieldValueList(values ...any) (*FieldValueList, error) {
	l := &FieldValueList{}
	for _, v := range values {
		fv, err := l.wrap(v)
		if err != nil {
			return nil, err
		}
		if !fv.IsNull() {
			l.put(fv, -1)
		}
	}
	return l, nil
}

// Len returns the number of values.
func (l *FieldValueList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.items)
}

// IsEmpty reports whether the list holds no values.
func (l *FieldValueList) IsEmpty() bool {
	return l.Len() == 0
}

// All returns the values in insertion order.
func (l *FieldValueList) All() []*FieldValue {
	if l == nil {
		return []*FieldValue{}
	}
	return slices.Clone(l.items)
}

// Sorted returns the values in display order (see CompareValues).
func (l *FieldValueList) Sorted() []*FieldValue {
	out := l.All()
	slices.SortStableFunc(out, CompareValues)
	return out
}

// At returns the value at position i, or nil when out of range.
func (l *FieldValueList) At(i int) *FieldValue {
	if i < 0 || i >= l.Len() {
		return nil
	}
	return l.items[i]
}

// Find returns the entry holding raw, or nil. raw is normalized with the
// list's field canonicalizer first.
func (l *FieldValueList) Find(raw string) *FieldValue {
	if l == nil {
		return nil
	}
	return l.byRaw[l.normalize(raw)]
}

// Has reports whether raw is present.
func (l *FieldValueList) Has(raw string) bool {
	return l.Find(raw) != nil
}

// Raw returns the raw strings in insertion order.
func (l *FieldValueList) Raw() []string {
	out := make([]string, 0, l.Len())
	if l == nil {
		return out
	}
	for _, fv := range l.items {
		out = append(out, fv.value)
	}
	return out
}

// DefaultValue returns the first default entry, or the first entry when
// none is flagged. It returns nil for an empty list.
func (l *FieldValueList) DefaultValue() *FieldValue {
	if l.Len() == 0 {
		return nil
	}
	for _, fv := range l.items {
		if fv.isDefault {
			return fv
		}
	}
	return l.items[0]
}

// Default returns the raw value of DefaultValue, or "".
func (l *FieldValueList) Default() string {
	return l.DefaultValue().Value()
}

// HasDefault reports whether any entry carries the default flag.
func (l *FieldValueList) HasDefault() bool {
	if l == nil {
		return false
	}
	return slices.ContainsFunc(l.items, (*FieldValue).IsDefault)
}

// Append wraps v and adds it at the end. An existing entry with the same
// raw value is replaced in place. Null values are ignored.
func (l *FieldValueList) Append(v any) error {
	if l == nil {
		return ErrScalarField
	}
	fv, err := l.wrap(v)
	if err != nil {
		return err
	}
	if fv.IsNull() {
		return nil
	}
	l.put(fv, -1)
	l.notify()
	return nil
}

// Insert wraps v and places it at position i (clamped to the list bounds).
// An existing entry with the same raw value moves to i.
func (l *FieldValueList) Insert(i int, v any) error {
	if l == nil {
		return ErrScalarField
	}
	fv, err := l.wrap(v)
	if err != nil {
		return err
	}
	if fv.IsNull() {
		return nil
	}
	l.drop(fv.value)
	l.put(fv, max(0, min(i, len(l.items))))
	l.notify()
	return nil
}

// Set replaces the entry at position i. When v's raw value already lives at
// another position, that entry is removed.
func (l *FieldValueList) Set(i int, v any) error {
	if l == nil {
		return ErrScalarField
	}
	if i < 0 || i >= len(l.items) {
		return fmt.Errorf("set %s[%d]: %w", l.field, i, ErrIndexOutOfRange)
	}
	fv, err := l.wrap(v)
	if err != nil {
		return err
	}
	old := l.items[i]
	old.list = nil
	delete(l.byRaw, old.value)
	l.items = slices.Delete(l.items, i, i+1)
	if !fv.IsNull() {
		if j := l.indexOf(fv.value); j >= 0 {
			l.dropAt(j)
			if j < i {
				i--
			}
		}
		l.put(fv, i)
	}
	l.notify()
	return nil
}

// Remove deletes the entry holding raw and reports whether one existed.
func (l *FieldValueList) Remove(raw string) bool {
	if l == nil {
		return false
	}
	if !l.drop(l.normalize(raw)) {
		return false
	}
	l.notify()
	return true
}

// Pop removes and returns the entry at position i. Negative positions
// count from the end.
func (l *FieldValueList) Pop(i int) (*FieldValue, bool) {
	n := l.Len()
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return nil, false
	}
	fv := l.items[i]
	l.dropAt(i)
	l.notify()
	return fv, true
}

// Clear removes every entry.
func (l *FieldValueList) Clear() {
	if l.Len() == 0 {
		return
	}
	for _, fv := range l.items {
		fv.list = nil
	}
	l.items = nil
	l.byRaw = nil
	l.notify()
}

// Add merges other into l. Values already present absorb missing labels and
// attributes; new values are appended. An incoming default flag is kept
// only when l has no default yet. Merging the same list twice is a no-op
// the second time.
func (l *FieldValueList) Add(other *FieldValueList) error {
	if l == nil {
		return ErrScalarField
	}
	if other.Len() == 0 || l == other {
		return nil
	}
	if l.mergeFrom(other.All()) {
		l.notify()
	}
	return nil
}

// Equal reports whether both lists hold the same raw values with equal
// metadata, regardless of order.
func (l *FieldValueList) Equal(other *FieldValueList) bool {
	if l.Len() != other.Len() {
		return false
	}
	for _, fv := range l.All() {
		if !fv.Equal(other.byRaw[fv.value]) {
			return false
		}
	}
	return true
}

// String renders the raw values.
func (l *FieldValueList) String() string {
	return fmt.Sprint(l.Raw())
}

func (l *FieldValueList) mergeFrom(incoming []*FieldValue) bool {
	changed := false
	hadDefault := l.HasDefault()
	for _, in := range incoming {
		raw := l.normalize(in.value)
		if raw == "" {
			continue
		}
		if local, ok := l.byRaw[raw]; ok {
			if local.absorb(in, !hadDefault) {
				changed = true
			}
			if local.isDefault {
				hadDefault = true
			}
			continue
		}
		cp := in.clone()
		cp.value = raw
		if hadDefault {
			cp.isDefault = false
		}
		if cp.isDefault {
			hadDefault = true
		}
		l.put(cp, -1)
		changed = true
	}
	return changed
}

// wrap converts v to a FieldValue owned by l, normalizing its raw value.
// A FieldValue owned by another list is cloned.
func (l *FieldValueList) wrap(v any) (*FieldValue, error) {
	fv, err := GetOrWrap(v)
	if err != nil {
		return nil, err
	}
	if fv.list != nil && fv.list != l {
		fv = fv.clone()
	}
	return fv.withValue(l.normalize(fv.value)), nil
}

// put stores fv at position at (or appends when at < 0). An existing entry
// with the same raw value is replaced in place.
func (l *FieldValueList) put(fv *FieldValue, at int) {
	if l.byRaw == nil {
		l.byRaw = make(map[string]*FieldValue)
	}
	fv.list = l
	if old, ok := l.byRaw[fv.value]; ok {
		if old != fv {
			old.list = nil
			l.items[l.indexOf(fv.value)] = fv
			l.byRaw[fv.value] = fv
		}
		return
	}
	l.byRaw[fv.value] = fv
	if at < 0 || at >= len(l.items) {
		l.items = append(l.items, fv)
		return
	}
	l.items = slices.Insert(l.items, at, fv)
}

func (l *FieldValueList) drop(raw string) bool {
	i := l.indexOf(raw)
	if i < 0 {
		return false
	}
	l.dropAt(i)
	return true
}

func (l *FieldValueList) dropAt(i int) {
	fv := l.items[i]
	fv.list = nil
	delete(l.byRaw, fv.value)
	l.items = slices.Delete(l.items, i, i+1)
}

func (l *FieldValueList) indexOf(raw string) int {
	return slices.IndexFunc(l.items, func(fv *FieldValue) bool { return fv.value == raw })
}

func (l *FieldValueList) normalize(raw string) string {
	return normalizeValue(l.field, raw)
}

func (l *FieldValueList) notify() {
	if l.contact != nil {
		l.contact.changed()
	}
}

// clone returns a detached deep copy.
func (l *FieldValueList) clone() *FieldValueList {
	cp := &FieldValueList{field: l.field}
	for _, fv := range l.items {
		cp.put(fv.clone(), -1)
	}
	return cp
}
