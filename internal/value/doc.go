// Package value provides the JSON value model shared by lifelog packages.
//
// Field-value attributes on contacts are opaque to the merge engine, but they
// still have to compare, sort and serialize deterministically. Value is a
// sealed union over the JSON types that attributes may carry.
//
// Key design constraints:
//   - NO float types - attribute numbers are int64 (integral floats are accepted and narrowed)
//   - Object keys are ordered by UTF-16 code units (RFC 8785) whenever they are written
//   - Strings are NFC normalized at the serialization boundary
//   - value imports nothing internal
package value
