package contacts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/roach88/lifelog/internal/value"
)

// Serialized keys.
const (
	keyID       = "id"
	keyIsMe     = "is_me"
	keyValues   = "values"
	keyScalars  = "scalars"
	keyOrder    = "order"
	keyContacts = "contacts"
	keyVersion  = "version"
	keyNextID   = "next_id"
)

// SnapshotVersion is the version written into book snapshots.
const SnapshotVersion = 1

// ToMap serializes the contact as
//
//	{"id": 3, "is_me": false, "values": {"phones": {"5551234": {"default": true, "labels": []}}}}
//
// Scalar fields are listed under "scalars" so they round-trip as scalars.
// Object keys are sorted on the wire, so a list whose insertion order is not
// sorted also lists its raw values under "order". Unassigned ids serialize
// as null.
func (c *Contact) ToMap() map[string]any {
	values := make(map[string]any)
	order := make(map[string]any)
	var scalars []any
	for _, name := range c.FieldNames() {
		entries := make(map[string]any)
		switch f := c.fields[name].(type) {
		case *FieldValueList:
			for _, fv := range f.items {
				entries[fv.value] = fv.Meta()
			}
			if raw := f.Raw(); !slices.IsSorted(raw) {
				order[name] = toAnySlice(raw)
			}
		case *FieldValue:
			entries[f.value] = f.Meta()
			scalars = append(scalars, name)
		}
		values[name] = entries
	}

	m := map[string]any{
		keyID:     nil,
		keyIsMe:   c.isMe,
		keyValues: values,
	}
	if c.hasID {
		m[keyID] = c.id
	}
	if len(scalars) > 0 {
		m[keyScalars] = scalars
	}
	if len(order) > 0 {
		m[keyOrder] = order
	}
	return m
}

// FromMap parses the ToMap representation. Raw values are inserted in the
// order listed under "order"; values it does not name follow, sorted.
func FromMap(m map[string]any) (*Contact, error) {
	c := &Contact{fields: make(map[string]Field)}

	if raw, ok := m[keyID]; ok && raw != nil {
		id, err := toInt(raw)
		if err != nil {
			return nil, invalid(keyID, raw, ErrInvalidRecord)
		}
		c.id, c.hasID = id, true
	}

	if raw, ok := m[keyIsMe]; ok && raw != nil {
		isMe, ok := raw.(bool)
		if !ok {
			return nil, invalid(keyIsMe, raw, ErrInvalidRecord)
		}
		c.isMe = isMe
	}

	scalars, ok := stringList(m[keyScalars])
	if !ok {
		return nil, invalid(keyScalars, m[keyScalars], ErrInvalidRecord)
	}

	order, ok := m[keyOrder].(map[string]any)
	if !ok && m[keyOrder] != nil {
		return nil, invalid(keyOrder, m[keyOrder], ErrInvalidRecord)
	}

	rawValues, _ := m[keyValues].(map[string]any)
	if m[keyValues] != nil && rawValues == nil {
		return nil, invalid(keyValues, m[keyValues], ErrInvalidRecord)
	}
	for name, rawEntries := range rawValues {
		if !validFieldName(name) {
			return nil, invalid(name, rawEntries, ErrInvalidFieldName)
		}
		entries, ok := rawEntries.(map[string]any)
		if !ok {
			return nil, invalid(name, rawEntries, ErrInvalidRecord)
		}

		listed, ok := stringList(order[name])
		if !ok {
			return nil, invalid(keyOrder, order[name], ErrInvalidRecord)
		}

		l := &FieldValueList{contact: c, field: name}
		for _, raw := range entryOrder(entries, listed) {
			meta, ok := entries[raw].(map[string]any)
			if !ok && entries[raw] != nil {
				return nil, invalid(name, entries[raw], ErrInvalidRecord)
			}
			fv, err := FieldValueFromMeta(raw, meta)
			if err != nil {
				return nil, fmt.Errorf("%s[%q]: %w", name, raw, err)
			}
			fv = fv.withValue(normalizeValue(name, raw))
			if fv.IsNull() {
				continue
			}
			// Raw values that normalize alike collapse into one entry.
			if existing := l.byRaw[fv.value]; existing != nil {
				existing.absorb(fv, true)
				continue
			}
			l.put(fv, -1)
		}

		if slices.Contains(scalars, name) && l.Len() == 1 {
			fv := l.items[0]
			fv.list = nil
			c.fields[name] = fv
			continue
		}
		c.fields[name] = l
	}
	return c, nil
}

// MarshalJSON encodes the contact as canonical JSON.
func (c *Contact) MarshalJSON() ([]byte, error) {
	return value.MarshalCanonical(c.ToMap())
}

// UnmarshalJSON decodes the ToMap representation into c. A contact owned by
// a Book is re-indexed.
func (c *Contact) UnmarshalJSON(data []byte) error {
	m, err := decodeObject(data)
	if err != nil {
		return err
	}
	parsed, err := FromMap(m)
	if err != nil {
		return err
	}
	c.detachAll()
	c.isMe = parsed.isMe
	c.fields = parsed.fields
	for name, f := range c.fields {
		c.adopt(name, f)
	}
	if c.book == nil {
		c.id, c.hasID = parsed.id, parsed.hasID
	}
	c.changed()
	return nil
}

// Digest returns the content id of the contact's fields and owner flag.
// Ids and value order do not contribute.
func (c *Contact) Digest() (string, error) {
	m := c.ToMap()
	delete(m, keyID)
	delete(m, keyOrder)
	return value.ContentID(value.DomainContact, m)
}

// Snapshot encodes every contact, ordered by id, and the id counter as
// canonical JSON.
func (b *Book) Snapshot() ([]byte, error) {
	return value.MarshalCanonical(b.snapshotMap())
}

// Digest returns the content id of the snapshot.
func (b *Book) Digest() (string, error) {
	return value.ContentID(value.DomainBook, b.snapshotMap())
}

// LoadBook rebuilds a Book from Snapshot output. Stored ids are kept.
func LoadBook(data []byte, opts ...BookOption) (*Book, error) {
	m, err := decodeObject(data)
	if err != nil {
		return nil, err
	}
	if v, ok := m[keyVersion]; ok {
		n, err := toInt(v)
		if err != nil || n > SnapshotVersion {
			return nil, fmt.Errorf("unsupported snapshot version %v", v)
		}
	}
	raw, ok := m[keyContacts].([]any)
	if !ok && m[keyContacts] != nil {
		return nil, invalid(keyContacts, m[keyContacts], ErrInvalidRecord)
	}

	b, err := NewBook(opts...)
	if err != nil {
		return nil, err
	}
	for i, entry := range raw {
		cm, ok := entry.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("contacts[%d]: %w", i, ErrInvalidRecord)
		}
		c, err := FromMap(cm)
		if err != nil {
			return nil, fmt.Errorf("contacts[%d]: %w", i, err)
		}
		if b.Add(c) == nil {
			return nil, fmt.Errorf("contacts[%d]: duplicate id %d: %w", i, c.id, ErrInvalidRecord)
		}
	}
	if v, ok := m[keyNextID]; ok && v != nil {
		next, err := toInt(v)
		if err != nil {
			return nil, invalid(keyNextID, v, ErrInvalidRecord)
		}
		b.nextID = max(b.nextID, next)
	}
	return b, nil
}

func (b *Book) snapshotMap() map[string]any {
	all := b.All()
	contacts := make([]any, 0, len(all))
	for _, c := range all {
		contacts = append(contacts, c.ToMap())
	}
	return map[string]any{
		keyVersion:  SnapshotVersion,
		keyNextID:   b.NextID(),
		keyContacts: contacts,
	}
}

func (c *Contact) detachAll() {
	for name := range c.fields {
		c.detach(name)
	}
}

func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("decode contact json: %w", err)
	}
	if m == nil {
		return nil, fmt.Errorf("decode contact json: %w", ErrInvalidRecord)
	}
	KeepValueOrder(m, data)
	return m, nil
}

// KeepValueOrder records under "order" in m the order in which data, the
// JSON text m was decoded from, lists each field's raw values, so that
// FromMap keeps a contact's first value first. Fields m already orders are
// left alone. Malformed input is ignored; FromMap reports it.
func KeepValueOrder(m map[string]any, data []byte) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(top[keyValues], &fields); err != nil {
		return
	}

	order, ok := m[keyOrder].(map[string]any)
	if !ok {
		if m[keyOrder] != nil {
			return
		}
		order = make(map[string]any)
	}
	for name, raw := range fields {
		if _, done := order[name]; done {
			continue
		}
		if keys := objectKeys(raw); len(keys) > 1 {
			order[name] = toAnySlice(keys)
		}
	}
	if len(order) > 0 {
		m[keyOrder] = order
	}
}

// objectKeys returns the keys of a JSON object in the order they appear.
func objectKeys(data json.RawMessage) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, ok := tok.(string)
		if !ok {
			return nil
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil
		}
	}
	return keys
}

// entryOrder lists the keys of entries: those named in listed first, in
// that order, then the rest sorted.
func entryOrder(entries map[string]any, listed []string) []string {
	keys := make([]string, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, raw := range listed {
		if _, ok := entries[raw]; ok && !seen[raw] {
			seen[raw] = true
			keys = append(keys, raw)
		}
	}
	var rest []string
	for raw := range entries {
		if !seen[raw] {
			rest = append(rest, raw)
		}
	}
	slices.Sort(rest)
	return append(keys, rest...)
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		return int(i), err
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("non-integral id %v", n)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("unsupported id type %T", v)
	}
}
