package types

import (
	"errors"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// StringSet is an ordered set of strings. In canonical form the elements are
// unique, non-empty, NFC-normalized and sorted ascending by byte order, so a
// set has exactly one encoding.
type StringSet []string

// NewStringSet builds a canonical set from arbitrary input: elements are
// NFC-normalized, sorted and de-duplicated. Empty strings are dropped.
func NewStringSet(elems ...string) StringSet {
	set := make(StringSet, 0, len(elems))
	for _, e := range elems {
		if e == "" {
			continue
		}
		set = append(set, norm.NFC.String(e))
	}
	sort.Strings(set)

	out := set[:0]
	for i, e := range set {
		if i > 0 && e == set[i-1] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// ValidateBasic checks that the set is in canonical form and within limits.
func (s StringSet) ValidateBasic() error {
	if len(s) > MaxStringSetSize {
		return fmt.Errorf("set has %d elements, max is %d", len(s), MaxStringSetSize)
	}
	for i, e := range s {
		switch {
		case e == "":
			return errors.New("set contains an empty string")
		case len(e) > MaxTagLength:
			return fmt.Errorf("element %d is longer than %d bytes", i, MaxTagLength)
		case !isCanonicalString(e):
			return fmt.Errorf("element %d is not NFC-normalized utf-8", i)
		case i > 0 && s[i-1] >= e:
			return fmt.Errorf("element %d is out of order or duplicated", i)
		}
	}
	return nil
}

// Contains reports whether e is in the set. s must be canonical.
func (s StringSet) Contains(e string) bool {
	i := sort.SearchStrings(s, e)
	return i < len(s) && s[i] == e
}

// Intersects reports whether s and other share at least one element. Both
// sets must be canonical. Comparison is exact and case-sensitive.
func (s StringSet) Intersects(other StringSet) bool {
	i, j := 0, 0
	for i < len(s) && j < len(other) {
		switch {
		case s[i] == other[j]:
			return true
		case s[i] < other[j]:
			i++
		default:
			j++
		}
	}
	return false
}
