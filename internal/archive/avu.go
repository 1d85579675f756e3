// Package archive defines the ArchiveClient contract for the object store
// backing WorkBot jobs, plus a baton-style JSON-wire subprocess implementation
// of it.
package archive

import "sort"

// AVU is an Attribute-Value-Units metadata tag attached to an archive path.
// Attribute may carry a namespace folded in as "namespace:attribute".
type AVU struct {
	Namespace string
	Attribute string
	Value     string
	Units     string
}

// WireAttribute returns the attribute as it appears on the wire: the
// namespace folded into the attribute as "namespace:attribute", or the bare
// attribute if Namespace is empty.
func (a AVU) WireAttribute() string {
	if a.Namespace == "" {
		return a.Attribute
	}

	return a.Namespace + ":" + a.Attribute
}

// SortAVUs orders tags lexically by namespace, then attribute, then value,
// then units, with empty (null) values sorting before non-empty ones.
func SortAVUs(avus []AVU) {
	sort.SliceStable(avus, func(i, j int) bool {
		a, b := avus[i], avus[j]

		if a.Namespace != b.Namespace {
			return nullsFirstLess(a.Namespace, b.Namespace)
		}

		if a.Attribute != b.Attribute {
			return nullsFirstLess(a.Attribute, b.Attribute)
		}

		if a.Value != b.Value {
			return nullsFirstLess(a.Value, b.Value)
		}

		return nullsFirstLess(a.Units, b.Units)
	})
}

func nullsFirstLess(a, b string) bool {
	if a == "" {
		return b != ""
	}

	if b == "" {
		return false
	}

	return a < b
}
