// Package contacts is the identity resolution and merge engine.
//
// A Contact is a named bag of fields. Each field is either a single
// FieldValue (a scalar) or a FieldValueList, and every value carries its own
// metadata: a default flag, free-form labels and opaque attributes.
//
//	{
//	  "names":  {"Joe": {"default": true, "labels": []}},
//	  "phones": {"5551234": {"default": true, "labels": ["Cell"]},
//	             "5559876": {"default": false, "labels": ["Work"]}}
//	}
//
// A Book owns contacts, assigns them ids and keeps one secondary index per
// indexable field (value -> contacts holding it). Duplicate detection unions
// index hits over every indexable value of a candidate; AddOrMerge folds a
// candidate into the contacts it overlaps with, or registers it as new.
//
// # Index contract
//
// Index entries are advisory. A contact whose list is mutated after
// registration is re-indexed for the values it gained, but values it lost
// stay in the index until the next read: every GetAll verifies each hit
// still holds the value and prunes the entries that do not.
//
// # Merge policy
//
// Merges are local-wins. Lists absorb new values and missing metadata;
// an incoming default flag never displaces an existing default. Scalar
// conflicts (two different values for a single-valued field) are settled by
// the Book's ConflictPolicy.
//
// A Book is not safe for concurrent use.
package contacts
