package contacts

import (
	"slices"
)

// Field is the content of a contact field: a *FieldValue scalar or a
// *FieldValueList.
type Field interface {
	// Raw returns the non-null raw values held by the field.
	Raw() []string

	// Len returns the number of non-null values.
	Len() int

	field()
}

func (*FieldValue) field()     {}
func (*FieldValueList) field() {}

// Raw returns the raw value as a one-element slice, or an empty slice when
// the value is null.
func (fv *FieldValue) Raw() []string {
	if fv.IsNull() {
		return []string{}
	}
	return []string{fv.value}
}

// Len returns 1 for a non-null value and 0 otherwise.
func (fv *FieldValue) Len() int {
	if fv.IsNull() {
		return 0
	}
	return 1
}

// Contact is a single identity: a set of named fields plus an id assigned
// by the Book it belongs to.
type Contact struct {
	id    int
	hasID bool
	isMe  bool

	fields map[string]Field

	book  *Book
	muted int
}

// Option configures a Contact at construction.
type Option func(*Contact) error

// WithName sets the default name.
func WithName(name string) Option {
	return func(c *Contact) error {
		c.SetName(name)
		return nil
	}
}

// WithPhones appends phone numbers. Numbers are normalized with
// NormalizePhone.
func WithPhones(phones ...string) Option {
	return WithValues(PhonesField, toAny(phones)...)
}

// WithEmails appends email addresses.
func WithEmails(emails ...string) Option {
	return WithValues(EmailsField, toAny(emails)...)
}

// WithValues appends raw strings or *FieldValues to a list field.
func WithValues(field string, values ...any) Option {
	return func(c *Contact) error {
		l := c.Values(field)
		if l == nil {
			return invalid(field, values, ErrInvalidFieldName)
		}
		for _, v := range values {
			if err := l.Append(v); err != nil {
				return err
			}
		}
		return nil
	}
}

// WithScalar stores a single-valued field.
func WithScalar(field string, v any) Option {
	return func(c *Contact) error {
		return c.SetScalar(field, v)
	}
}

// AsMe marks the contact as the owner of the data.
func AsMe() Option {
	return func(c *Contact) error {
		c.isMe = true
		return nil
	}
}

// WithID presets the id. A Book keeps a preset id when it is free.
func WithID(id int) Option {
	return func(c *Contact) error {
		c.id, c.hasID = id, true
		return nil
	}
}

// New builds a detached contact.
func New(opts ...Option) (*Contact, error) {
	c := &Contact{fields: make(map[string]Field)}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error.
func MustNew(opts ...Option) *Contact {
	c, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// ID returns the id and whether one is assigned.
func (c *Contact) ID() (int, bool) {
	return c.id, c.hasID
}

// StripID clears the id of a contact that no Book owns. It reports whether
// the id was cleared.
func (c *Contact) StripID() bool {
	if c.book != nil {
		return false
	}
	c.id, c.hasID = 0, false
	return true
}

// IsMe reports whether the contact represents the data owner.
func (c *Contact) IsMe() bool {
	return c.isMe
}

// SetMe sets the owner flag.
func (c *Contact) SetMe(isMe bool) {
	if c.isMe == isMe {
		return
	}
	c.isMe = isMe
	c.changed()
}

// Values returns the list stored under field, creating an empty one when the
// field is absent. It returns nil when the field holds a scalar or the name
// is blank.
func (c *Contact) Values(field string) *FieldValueList {
	if !validFieldName(field) {
		return nil
	}
	c.ensure()
	switch f := c.fields[field].(type) {
	case *FieldValueList:
		return f
	case *FieldValue:
		return nil
	}
	l := &FieldValueList{contact: c, field: field}
	c.fields[field] = l
	return l
}

// Scalar returns the scalar stored under field, or nil.
func (c *Contact) Scalar(field string) *FieldValue {
	fv, _ := c.fields[field].(*FieldValue)
	return fv
}

// SetScalar replaces field with a single value. Setting a null value
// removes the field.
func (c *Contact) SetScalar(field string, v any) error {
	if !validFieldName(field) {
		return invalid(field, v, ErrInvalidFieldName)
	}
	fv, err := GetOrWrap(v)
	if err != nil {
		return err
	}
	if fv.list != nil {
		fv = fv.clone()
	}
	fv = fv.withValue(normalizeValue(field, fv.value))
	c.ensure()
	c.detach(field)
	if fv.IsNull() {
		delete(c.fields, field)
	} else {
		c.fields[field] = fv
	}
	c.changed()
	return nil
}

// Field returns the populated field stored under name.
func (c *Contact) Field(name string) (Field, bool) {
	f, ok := c.fields[name]
	if !ok || f.Len() == 0 {
		return nil, false
	}
	return f, true
}

// DeleteField removes a field and reports whether it was populated.
func (c *Contact) DeleteField(name string) bool {
	f, ok := c.fields[name]
	if !ok {
		return false
	}
	c.detach(name)
	delete(c.fields, name)
	if f.Len() == 0 {
		return false
	}
	c.changed()
	return true
}

// FieldNames returns the populated field names in sorted order.
func (c *Contact) FieldNames() []string {
	names := make([]string, 0, len(c.fields))
	for name, f := range c.fields {
		if f.Len() > 0 {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Name returns the default name, or "".
func (c *Contact) Name() string {
	return c.defaultOf(NamesField)
}

// SetName replaces all names with a single default name.
func (c *Contact) SetName(name string) {
	c.ensure()
	c.batch(func() {
		if _, ok := c.fields[NamesField].(*FieldValue); ok {
			delete(c.fields, NamesField)
		}
		l := c.Values(NamesField)
		l.Clear()
		fv := &FieldValue{value: name, isDefault: true}
		if fv = fv.withValue(l.normalize(name)); !fv.IsNull() {
			l.put(fv, -1)
		}
	})
}

// Phone returns the default phone number, or "".
func (c *Contact) Phone() string {
	return c.defaultOf(PhonesField)
}

// Email returns the default email address, or "".
func (c *Contact) Email() string {
	return c.defaultOf(EmailsField)
}

// Equal reports whether both contacts hold the same populated fields with
// equal values and the same owner flag. Ids are ignored.
func (c *Contact) Equal(other *Contact) bool {
	if c == other {
		return true
	}
	if c == nil || other == nil || c.isMe != other.isMe {
		return false
	}
	names := c.FieldNames()
	if !slices.Equal(names, other.FieldNames()) {
		return false
	}
	for _, name := range names {
		if !fieldsEqual(c.fields[name], other.fields[name]) {
			return false
		}
	}
	return true
}

// HasOverlap reports whether the contacts share at least one raw value in a
// field both of them populate.
func (c *Contact) HasOverlap(other *Contact) bool {
	for _, name := range c.FieldNames() {
		if _, ok := other.Field(name); !ok {
			continue
		}
		for _, raw := range c.fields[name].Raw() {
			if other.hasValue(name, raw) {
				return true
			}
		}
	}
	return false
}

// Merge folds other into c. List fields absorb new values and missing
// metadata; the owner flag is OR-ed. Scalar conflicts are settled by policy.
func (c *Contact) Merge(other *Contact, policy ConflictPolicy) {
	if other == nil || other == c {
		return
	}
	c.ensure()
	c.batch(func() {
		for _, name := range other.FieldNames() {
			c.mergeField(name, other.fields[name], policy)
		}
		if other.isMe {
			c.isMe = true
		}
	})
}

// FoundIn returns the first candidate equal to c. Candidates are
// pre-filtered on a single hook value (the name, else the first scalar,
// else the default of the first list) before the full comparison.
func (c *Contact) FoundIn(candidates []*Contact) *Contact {
	field, raw := c.hook()
	for _, cand := range candidates {
		if field != "" && !cand.hasValue(field, raw) {
			continue
		}
		if cand.Equal(c) {
			return cand
		}
	}
	return nil
}

// Clone returns a detached deep copy without an id.
func (c *Contact) Clone() *Contact {
	cp := &Contact{isMe: c.isMe, fields: make(map[string]Field, len(c.fields))}
	for name, f := range c.fields {
		if f.Len() == 0 {
			continue
		}
		cp.fields[name] = cp.adopt(name, cloneField(f))
	}
	return cp
}

// String returns a display label: "Me", the name, the default email, the
// default phone, or "???".
func (c *Contact) String() string {
	if c.isMe {
		return "Me"
	}
	for _, field := range []string{NamesField, EmailsField, PhonesField} {
		if v := c.defaultOf(field); v != "" {
			return v
		}
	}
	return "???"
}

func (c *Contact) mergeField(name string, in Field, policy ConflictPolicy) {
	local, ok := c.fields[name]
	if !ok || local.Len() == 0 {
		c.fields[name] = c.adopt(name, cloneField(in))
		return
	}

	switch l := local.(type) {
	case *FieldValueList:
		switch i := in.(type) {
		case *FieldValueList:
			l.mergeFrom(i.All())
		case *FieldValue:
			l.mergeFrom([]*FieldValue{i})
		}
	case *FieldValue:
		switch i := in.(type) {
		case *FieldValue:
			c.mergeScalar(name, l, i, policy)
		case *FieldValueList:
			if policy == KeepBoth {
				c.promote(name, l).mergeFrom(i.All())
				return
			}
			if match := i.byRaw[l.value]; match != nil {
				l.absorb(match, true)
				return
			}
			c.mergeScalar(name, l, i.DefaultValue(), policy)
		}
	}
}

func (c *Contact) mergeScalar(name string, local, in *FieldValue, policy ConflictPolicy) {
	raw := normalizeValue(name, in.value)
	if raw == "" {
		return
	}
	if local.value == raw {
		local.absorb(in, true)
		return
	}
	switch policy {
	case KeepIncoming:
		cp := in.clone()
		cp.value = raw
		cp.absorbAttrs(local)
		c.fields[name] = cp
	case KeepBoth:
		c.promote(name, local).mergeFrom([]*FieldValue{in})
	default:
		local.absorbAttrs(in)
	}
}

// promote turns a scalar field into a list holding it.
func (c *Contact) promote(name string, fv *FieldValue) *FieldValueList {
	l := &FieldValueList{contact: c, field: name}
	l.put(fv, -1)
	c.fields[name] = l
	return l
}

func (c *Contact) hook() (string, string) {
	if name := c.Name(); name != "" {
		return NamesField, name
	}
	names := c.FieldNames()
	for _, name := range names {
		if fv, ok := c.fields[name].(*FieldValue); ok {
			return name, fv.value
		}
	}
	for _, name := range names {
		if l, ok := c.fields[name].(*FieldValueList); ok {
			return name, l.Default()
		}
	}
	return "", ""
}

// hasValue reports whether field holds the already normalized raw value.
func (c *Contact) hasValue(field, raw string) bool {
	switch f := c.fields[field].(type) {
	case *FieldValueList:
		_, ok := f.byRaw[raw]
		return ok
	case *FieldValue:
		return !f.IsNull() && f.value == raw
	}
	return false
}

func (c *Contact) defaultOf(field string) string {
	switch f := c.fields[field].(type) {
	case *FieldValueList:
		return f.Default()
	case *FieldValue:
		return f.Value()
	}
	return ""
}

// adopt stamps a list with its owning contact and field name.
func (c *Contact) adopt(name string, f Field) Field {
	if l, ok := f.(*FieldValueList); ok {
		l.contact, l.field = c, name
	}
	return f
}

func (c *Contact) detach(name string) {
	if l, ok := c.fields[name].(*FieldValueList); ok {
		l.contact = nil
	}
}

func (c *Contact) ensure() {
	if c.fields == nil {
		c.fields = make(map[string]Field)
	}
}

// batch runs fn with change notifications suppressed and notifies once.
func (c *Contact) batch(fn func()) {
	c.muted++
	fn()
	c.muted--
	c.changed()
}

func (c *Contact) changed() {
	if c.muted > 0 || c.book == nil {
		return
	}
	c.book.reindex(c)
}

func cloneField(f Field) Field {
	switch v := f.(type) {
	case *FieldValueList:
		return v.clone()
	case *FieldValue:
		return v.clone()
	}
	return nil
}

func fieldsEqual(a, b Field) bool {
	switch x := a.(type) {
	case *FieldValueList:
		y, ok := b.(*FieldValueList)
		return ok && x.Equal(y)
	case *FieldValue:
		y, ok := b.(*FieldValue)
		return ok && x.Equal(y)
	}
	return false
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
