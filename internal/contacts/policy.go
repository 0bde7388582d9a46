package contacts

import (
	"fmt"
	"strings"
)

// IndexPolicy selects which fields a Book indexes.
type IndexPolicy int

const (
	// IndexAll indexes every field.
	IndexAll IndexPolicy = iota
	// IndexBlacklist indexes every field except the unindexable set.
	IndexBlacklist
	// IndexWhitelist indexes only the indexable set.
	IndexWhitelist
	// IndexNone indexes nothing.
	IndexNone
)

var indexPolicyNames = map[IndexPolicy]string{
	IndexAll:       "all",
	IndexBlacklist: "blacklist",
	IndexWhitelist: "whitelist",
	IndexNone:      "none",
}

// String returns the policy name.
func (p IndexPolicy) String() string {
	if s, ok := indexPolicyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("IndexPolicy(%d)", int(p))
}

// Valid reports whether p is a known policy.
func (p IndexPolicy) Valid() bool {
	_, ok := indexPolicyNames[p]
	return ok
}

// ParseIndexPolicy parses "all", "blacklist", "whitelist" or "none".
func ParseIndexPolicy(s string) (IndexPolicy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range indexPolicyNames {
		if n == name {
			return p, nil
		}
	}
	return 0, invalid("index_policy", s, ErrInvalidIndexPolicy)
}

// ConflictPolicy settles two different values for a scalar field.
type ConflictPolicy int

const (
	// KeepLocal keeps the local value and absorbs missing attributes from
	// the incoming one.
	KeepLocal ConflictPolicy = iota
	// KeepIncoming replaces the local value, keeping local attributes the
	// incoming value lacks.
	KeepIncoming
	// KeepBoth promotes the field to a list holding both values.
	KeepBoth
)

var conflictPolicyNames = map[ConflictPolicy]string{
	KeepLocal:    "keep-local",
	KeepIncoming: "keep-incoming",
	KeepBoth:     "keep-both",
}

// String returns the policy name.
func (p ConflictPolicy) String() string {
	if s, ok := conflictPolicyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("ConflictPolicy(%d)", int(p))
}

// Valid reports whether p is a known policy.
func (p ConflictPolicy) Valid() bool {
	_, ok := conflictPolicyNames[p]
	return ok
}

// ParseConflictPolicy parses "keep-local", "keep-incoming" or "keep-both".
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range conflictPolicyNames {
		if n == name {
			return p, nil
		}
	}
	return 0, invalid("conflict_policy", s, ErrInvalidConflictPolicy)
}
