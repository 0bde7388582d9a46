package contacts

import (
	"log/slog"
	"maps"
	"slices"
)

// DefaultIndexable is the indexable set of a new Book.
var DefaultIndexable = []string{NamesField, PhonesField, EmailsField}

// Book owns a set of contacts and indexes them by field value.
type Book struct {
	contacts map[int]*Contact
	nextID   int
	me       *Contact

	// indices maps field -> raw value -> contacts that held it when indexed.
	indices map[string]map[string][]*Contact

	policy      IndexPolicy
	indexable   map[string]struct{}
	unindexable map[string]struct{}
	conflict    ConflictPolicy

	logger *slog.Logger
}

// BookOption configures a Book.
type BookOption func(*Book) error

// WithIndexPolicy selects the index policy.
func WithIndexPolicy(p IndexPolicy) BookOption {
	return func(b *Book) error {
		if !p.Valid() {
			return invalid("index_policy", p, ErrInvalidIndexPolicy)
		}
		b.policy = p
		return nil
	}
}

// WithIndexable sets the fields indexed under IndexWhitelist.
func WithIndexable(fields ...string) BookOption {
	return func(b *Book) error {
		set, err := fieldSet(fields)
		if err != nil {
			return err
		}
		b.indexable = set
		return nil
	}
}

// WithUnindexable sets the fields skipped under IndexBlacklist.
func WithUnindexable(fields ...string) BookOption {
	return func(b *Book) error {
		set, err := fieldSet(fields)
		if err != nil {
			return err
		}
		b.unindexable = set
		return nil
	}
}

// WithConflictPolicy selects how scalar conflicts are settled on merge.
func WithConflictPolicy(p ConflictPolicy) BookOption {
	return func(b *Book) error {
		if !p.Valid() {
			return invalid("conflict_policy", p, ErrInvalidConflictPolicy)
		}
		b.conflict = p
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) BookOption {
	return func(b *Book) error {
		if logger != nil {
			b.logger = logger
		}
		return nil
	}
}

// NewBook creates an empty Book. By default it whitelists names, phones and
// emails and keeps local values on scalar conflicts.
func NewBook(opts ...BookOption) (*Book, error) {
	indexable, _ := fieldSet(DefaultIndexable)
	b := &Book{
		contacts:    make(map[int]*Contact),
		indices:     make(map[string]map[string][]*Contact),
		policy:      IndexWhitelist,
		indexable:   indexable,
		unindexable: map[string]struct{}{},
		conflict:    KeepLocal,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// MustNewBook is like NewBook but panics on error.
func MustNewBook(opts ...BookOption) *Book {
	b, err := NewBook(opts...)
	if err != nil {
		panic(err)
	}
	return b
}

// Len returns the number of registered contacts.
func (b *Book) Len() int {
	return len(b.contacts)
}

// All returns the registered contacts ordered by id.
func (b *Book) All() []*Contact {
	ids := slices.Sorted(maps.Keys(b.contacts))
	out := make([]*Contact, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.contacts[id])
	}
	return out
}

// GetByID returns the contact registered under id.
func (b *Book) GetByID(id int) (*Contact, bool) {
	c, ok := b.contacts[id]
	return c, ok
}

// Me returns the owner contact, or nil. The first owner-flagged contact
// added keeps the role; later ones are ordinary contacts. When the owner
// loses its flag the lowest-id flagged contact takes over.
func (b *Book) Me() *Contact {
	return b.me
}

// IndexPolicy returns the active index policy.
func (b *Book) IndexPolicy() IndexPolicy {
	return b.policy
}

// ConflictPolicy returns the active conflict policy.
func (b *Book) ConflictPolicy() ConflictPolicy {
	return b.conflict
}

// SetConflictPolicy changes the conflict policy for later merges.
func (b *Book) SetConflictPolicy(p ConflictPolicy) error {
	return WithConflictPolicy(p)(b)
}

// SetIndexPolicy changes the index policy and rebuilds every index.
func (b *Book) SetIndexPolicy(p IndexPolicy) error {
	if err := WithIndexPolicy(p)(b); err != nil {
		return err
	}
	b.Reindex()
	return nil
}

// SetIndexable replaces the whitelist and rebuilds every index.
func (b *Book) SetIndexable(fields ...string) error {
	if err := WithIndexable(fields...)(b); err != nil {
		return err
	}
	b.Reindex()
	return nil
}

// SetUnindexable replaces the blacklist and rebuilds every index.
func (b *Book) SetUnindexable(fields ...string) error {
	if err := WithUnindexable(fields...)(b); err != nil {
		return err
	}
	b.Reindex()
	return nil
}

// Indexed reports whether field is indexed under the active policy.
func (b *Book) Indexed(field string) bool {
	switch b.policy {
	case IndexAll:
		return true
	case IndexBlacklist:
		_, skip := b.unindexable[field]
		return !skip
	case IndexWhitelist:
		_, ok := b.indexable[field]
		return ok
	default:
		return false
	}
}

// Add registers c and returns it. A contact without an id gets the lowest
// free id at or above Len() that was never handed out. Adding a contact
// whose id is already taken is a no-op that returns nil. A contact owned by
// another Book is cloned first.
func (b *Book) Add(c *Contact) *Contact {
	if c == nil {
		return nil
	}
	if c.book == b {
		return c
	}
	if c.book != nil {
		c = c.Clone()
	}
	if c.hasID {
		if _, taken := b.contacts[c.id]; taken {
			b.logger.Debug("contact id already registered", "id", c.id)
			return nil
		}
	} else {
		c.id, c.hasID = b.newID(), true
	}
	c.ensure()
	b.contacts[c.id] = c
	c.book = b
	b.reindex(c)
	return c
}

// GetAll returns the contacts holding raw in field. Stale index entries
// (contacts that no longer hold the value) are pruned.
func (b *Book) GetAll(field, raw string) []*Contact {
	raw = normalizeValue(field, raw)
	if raw == "" {
		return []*Contact{}
	}
	byValue := b.indices[field]
	entries := byValue[raw]
	if len(entries) == 0 {
		return []*Contact{}
	}
	kept := make([]*Contact, 0, len(entries))
	for _, c := range entries {
		if c.book == b && c.hasValue(field, raw) {
			kept = append(kept, c)
		}
	}
	if len(kept) == 0 {
		delete(byValue, raw)
	} else {
		byValue[raw] = kept
	}
	return slices.Clone(kept)
}

// Get returns the first contact holding raw in field, or nil.
func (b *Book) Get(field, raw string) *Contact {
	if hits := b.GetAll(field, raw); len(hits) > 0 {
		return hits[0]
	}
	return nil
}

// Find returns a registered contact equal to c, or nil.
func (b *Book) Find(c *Contact) *Contact {
	field, raw := c.hook()
	if field != "" && b.Indexed(field) {
		return c.FoundIn(b.GetAll(field, raw))
	}
	return c.FoundIn(b.All())
}

// FindDuplicates returns the union of index hits over every indexable value
// of c, in first-hit order.
func (b *Book) FindDuplicates(c *Contact) []*Contact {
	out := []*Contact{}
	seen := make(map[*Contact]struct{})
	for _, name := range c.FieldNames() {
		if !b.Indexed(name) {
			continue
		}
		for _, raw := range c.fields[name].Raw() {
			for _, hit := range b.GetAll(name, raw) {
				if _, dup := seen[hit]; dup {
					continue
				}
				seen[hit] = struct{}{}
				out = append(out, hit)
			}
		}
	}
	return out
}

// AddOrMerge merges c into every contact it duplicates and returns the
// first of them. When nothing matches, c is added.
func (b *Book) AddOrMerge(c *Contact) *Contact {
	dups := b.FindDuplicates(c)
	if len(dups) == 0 {
		return b.Add(c)
	}
	for _, dup := range dups {
		if dup == c {
			continue
		}
		dup.Merge(c, b.conflict)
		b.logger.Debug("contact merged", "into", dup.id, "contact", dup.String())
	}
	return dups[0]
}

// Merge folds every contact of other into b. A contact with duplicates in b
// is merged into the first of them; any other contact is copied in with a
// fresh id. The result maps other's ids to the contacts now holding them.
func (b *Book) Merge(other *Book) map[int]*Contact {
	mapping := make(map[int]*Contact, other.Len())
	if other == b {
		for _, c := range b.All() {
			mapping[c.id] = c
		}
		return mapping
	}
	for _, in := range other.All() {
		if dups := b.FindDuplicates(in); len(dups) > 0 {
			dups[0].Merge(in, b.conflict)
			mapping[in.id] = dups[0]
			continue
		}
		mapping[in.id] = b.Add(in.Clone())
	}
	b.logger.Debug("books merged", "incoming", other.Len(), "contacts", b.Len())
	return mapping
}

// Reindex rebuilds every index from scratch.
func (b *Book) Reindex() {
	b.indices = make(map[string]map[string][]*Contact)
	for _, c := range b.All() {
		b.index(c)
	}
}

// reindex refreshes the entries of a single contact after a mutation.
func (b *Book) reindex(c *Contact) {
	if c.book != b {
		return
	}
	switch {
	case c.isMe && b.me == nil:
		b.me = c
	case !c.isMe && b.me == c:
		b.me = b.firstMe()
	}
	b.index(c)
}

// firstMe returns the lowest-id contact flagged as the data owner.
func (b *Book) firstMe() *Contact {
	for _, c := range b.All() {
		if c.isMe {
			return c
		}
	}
	return nil
}

func (b *Book) index(c *Contact) {
	for name, f := range c.fields {
		if !b.Indexed(name) {
			continue
		}
		for _, raw := range f.Raw() {
			byValue := b.indices[name]
			if byValue == nil {
				byValue = make(map[string][]*Contact)
				b.indices[name] = byValue
			}
			if !slices.Contains(byValue[raw], c) {
				byValue[raw] = append(byValue[raw], c)
			}
		}
	}
}

func (b *Book) newID() int {
	id := b.NextID()
	b.nextID = id + 1
	return id
}

// NextID returns the id the next contact without one would receive: the
// lowest free id at or above both Len() and every id handed out before.
func (b *Book) NextID() int {
	id := max(b.nextID, len(b.contacts))
	for {
		if _, taken := b.contacts[id]; !taken {
			return id
		}
		id++
	}
}

func fieldSet(fields []string) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if !validFieldName(f) {
			return nil, invalid("field", f, ErrInvalidFieldName)
		}
		set[f] = struct{}{}
	}
	return set, nil
}
