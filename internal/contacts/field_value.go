package contacts

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/lifelog/internal/value"
)

// Reserved metadata keys. Attributes may not use them.
const (
	metaDefault = "default"
	metaLabels  = "labels"
	metaLabel   = "label"
)

// FieldValue is a single raw string value with metadata attached.
// The empty string is the null value.
type FieldValue struct {
	value     string
	isDefault bool
	labels    []string
	attrs     value.Object

	// list is the owning list, set when the value is stored in one.
	list *FieldValueList
}

// ValueOption configures a FieldValue at construction.
type ValueOption func(*FieldValue) error

// Default sets the default flag.
func Default(isDefault bool) ValueOption {
	return func(fv *FieldValue) error {
		fv.isDefault = isDefault
		return nil
	}
}

// Labels replaces the label list.
func Labels(labels ...string) ValueOption {
	return func(fv *FieldValue) error {
		fv.labels = dedupLabels(labels)
		return nil
	}
}

// Label appends a single label.
func Label(label string) ValueOption {
	return func(fv *FieldValue) error {
		fv.labels = dedupLabels(append(fv.labels, label))
		return nil
	}
}

// Attr sets an opaque attribute. v must convert to a value.Value: floats
// and unsupported Go types are rejected with ErrInvalidAttribute.
func Attr(key string, v any) ValueOption {
	return func(fv *FieldValue) error {
		return fv.SetAttr(key, v)
	}
}

// NewFieldValue wraps raw with metadata.
func NewFieldValue(raw string, opts ...ValueOption) (*FieldValue, error) {
	fv := &FieldValue{value: raw}
	for _, opt := range opts {
		if err := opt(fv); err != nil {
			return nil, err
		}
	}
	return fv, nil
}

// MustFieldValue is like NewFieldValue but panics on error.
func MustFieldValue(raw string, opts ...ValueOption) *FieldValue {
	fv, err := NewFieldValue(raw, opts...)
	if err != nil {
		panic(err)
	}
	return fv
}

// FieldValueFromMeta builds a FieldValue from its serialized metadata
// mapping. "default" must be a bool and "labels" a list of strings; every
// other key becomes an attribute. Supplying both "label" and "labels" is an
// error.
func FieldValueFromMeta(raw string, meta map[string]any) (*FieldValue, error) {
	fv := &FieldValue{value: raw}

	_, hasLabel := meta[metaLabel]
	_, hasLabels := meta[metaLabels]
	if hasLabel && hasLabels {
		return nil, invalid(metaLabel, meta[metaLabel], ErrInvalidLabels)
	}

	for k, v := range meta {
		switch k {
		case metaDefault:
			b, ok := v.(bool)
			if !ok {
				return nil, invalid(k, v, ErrInvalidDefault)
			}
			fv.isDefault = b
		case metaLabels:
			labels, ok := stringList(v)
			if !ok {
				return nil, invalid(k, v, ErrInvalidLabels)
			}
			fv.labels = dedupLabels(labels)
		case metaLabel:
			s, ok := v.(string)
			if !ok {
				return nil, invalid(k, v, ErrInvalidLabels)
			}
			fv.labels = []string{s}
		default:
			if err := fv.SetAttr(k, v); err != nil {
				return nil, err
			}
		}
	}
	return fv, nil
}

// GetOrWrap returns v unchanged when it already is a *FieldValue, or wraps
// a raw string with default metadata.
func GetOrWrap(v any) (*FieldValue, error) {
	switch val := v.(type) {
	case *FieldValue:
		if val == nil {
			return &FieldValue{}, nil
		}
		return val, nil
	case FieldValue:
		return val.clone(), nil
	case string:
		return &FieldValue{value: val}, nil
	case nil:
		return &FieldValue{}, nil
	default:
		return nil, invalid("", v, ErrUnsupportedInput)
	}
}

// Value returns the raw string. "" is null.
func (fv *FieldValue) Value() string {
	if fv == nil {
		return ""
	}
	return fv.value
}

// IsNull reports whether the value is null.
func (fv *FieldValue) IsNull() bool {
	return fv.Value() == ""
}

// IsDefault reports the default flag.
func (fv *FieldValue) IsDefault() bool {
	return fv != nil && fv.isDefault
}

// SetDefault sets the default flag.
func (fv *FieldValue) SetDefault(isDefault bool) {
	fv.isDefault = isDefault
}

// Labels returns a copy of the labels.
func (fv *FieldValue) Labels() []string {
	if fv == nil || len(fv.labels) == 0 {
		return []string{}
	}
	return slices.Clone(fv.labels)
}

// AddLabel adds label if not already present.
func (fv *FieldValue) AddLabel(label string) {
	if !slices.Contains(fv.labels, label) {
		fv.labels = append(fv.labels, label)
	}
}

// HasLabel reports whether label is attached.
func (fv *FieldValue) HasLabel(label string) bool {
	return fv != nil && slices.Contains(fv.labels, label)
}

// Attr returns the attribute stored under key.
func (fv *FieldValue) Attr(key string) (value.Value, bool) {
	if fv == nil {
		return nil, false
	}
	v, ok := fv.attrs[key]
	return v, ok
}

// Attrs returns a deep copy of all attributes.
func (fv *FieldValue) Attrs() value.Object {
	if fv == nil || len(fv.attrs) == 0 {
		return value.Object{}
	}
	return fv.attrs.Clone()
}

// SetAttr stores an attribute. Reserved keys and values that cannot be
// represented canonically are rejected.
func (fv *FieldValue) SetAttr(key string, v any) error {
	if key == "" || key == metaDefault || key == metaLabels || key == metaLabel {
		return invalid(key, v, ErrInvalidAttribute)
	}
	conv, err := value.FromAny(v)
	if err != nil {
		return &ValidationError{Field: key, Value: v, Err: fmt.Errorf("%w: %w", ErrInvalidAttribute, err)}
	}
	if fv.attrs == nil {
		fv.attrs = value.Object{}
	}
	fv.attrs[key] = conv
	return nil
}

// Equal reports whether two values hold the same raw value, default flag,
// labels (in order) and attributes.
func (fv *FieldValue) Equal(other *FieldValue) bool {
	if fv == nil || other == nil {
		return fv.IsNull() && other.IsNull()
	}
	return fv.value == other.value &&
		fv.isDefault == other.isDefault &&
		labelsEqual(fv.labels, other.labels) &&
		attrsEqual(fv.attrs, other.attrs)
}

// String returns the raw value.
func (fv *FieldValue) String() string {
	return fv.Value()
}

// Meta returns the serialized metadata mapping.
func (fv *FieldValue) Meta() map[string]any {
	labels := make([]any, 0, len(fv.labels))
	for _, l := range fv.labels {
		labels = append(labels, l)
	}
	meta := map[string]any{
		metaDefault: fv.isDefault,
		metaLabels:  labels,
	}
	for k, v := range fv.attrs {
		meta[k] = value.ToAny(v)
	}
	return meta
}

// CompareValues is a total order over values: by raw value with nulls
// last, then defaults first, then labels, then canonical attributes.
func CompareValues(a, b *FieldValue) int {
	if c := cmp.Compare(boolRank(a.IsNull()), boolRank(b.IsNull())); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Value(), b.Value()); c != 0 {
		return c
	}
	if c := cmp.Compare(boolRank(!a.IsDefault()), boolRank(!b.IsDefault())); c != 0 {
		return c
	}
	if c := slices.Compare(a.Labels(), b.Labels()); c != 0 {
		return c
	}
	return value.Compare(a.Attrs(), b.Attrs())
}

func (fv *FieldValue) clone() *FieldValue {
	cp := &FieldValue{
		value:     fv.value,
		isDefault: fv.isDefault,
		labels:    slices.Clone(fv.labels),
	}
	if len(fv.attrs) > 0 {
		cp.attrs = fv.attrs.Clone()
	}
	return cp
}

// withValue returns fv, or a clone carrying raw when it differs.
func (fv *FieldValue) withValue(raw string) *FieldValue {
	if fv.value == raw {
		return fv
	}
	cp := fv.clone()
	cp.value = raw
	return cp
}

// absorb merges labels and attributes missing locally from other.
// The default flag is adopted only when allowed. Reports whether fv changed.
func (fv *FieldValue) absorb(other *FieldValue, adoptDefault bool) bool {
	changed := false
	if adoptDefault && other.isDefault && !fv.isDefault {
		fv.isDefault = true
		changed = true
	}
	for _, l := range other.labels {
		if !slices.Contains(fv.labels, l) {
			fv.labels = append(fv.labels, l)
			changed = true
		}
	}
	for k, v := range other.attrs {
		if _, ok := fv.attrs[k]; ok {
			continue
		}
		if fv.attrs == nil {
			fv.attrs = value.Object{}
		}
		fv.attrs[k] = value.Clone(v)
		changed = true
	}
	return changed
}

// absorbAttrs copies attributes missing locally from other.
func (fv *FieldValue) absorbAttrs(other *FieldValue) {
	for k, v := range other.attrs {
		if _, ok := fv.attrs[k]; ok {
			continue
		}
		if fv.attrs == nil {
			fv.attrs = value.Object{}
		}
		fv.attrs[k] = value.Clone(v)
	}
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func labelsEqual(a, b []string) bool {
	return len(a) == len(b) && slices.Equal(a, b)
}

func attrsEqual(a, b value.Object) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	if len(a) != len(b) {
		return false
	}
	return value.Equal(a, b)
}

func dedupLabels(labels []string) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

func stringList(v any) ([]string, bool) {
	switch val := v.(type) {
	case nil:
		return nil, true
	case []string:
		return val, true
	case []any:
		out := make([]string, 0, len(val))
		for _, elem := range val {
			s, ok := elem.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
