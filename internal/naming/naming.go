// Package naming maps between user-visible base names and draft names.
//
// A draft name has the form "__{version}__{base}" where version is a
// non-negative decimal integer. Every other non-empty name is a base name.
package naming

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var draftPattern = regexp.MustCompile(`^__(\d+)__(.+)$`)

// IsDraft reports whether name is a draft name.
func IsDraft(name string) bool {
	return draftPattern.MatchString(name)
}

// BaseOf strips the draft prefix, if any.
func BaseOf(name string) string {
	m := draftPattern.FindStringSubmatch(name)
	if m == nil {
		return name
	}
	return m[2]
}

// DraftName returns the draft name for base at version.
func DraftName(base string, version uint64) string {
	return fmt.Sprintf("__%d__%s", version, base)
}

// Version parses the version of a draft name. ok is false for base names
// and for drafts whose version does not fit in a uint64.
func Version(name string) (version uint64, ok bool) {
	m := draftPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// InFamily reports whether name is a draft of base.
func InFamily(name, base string) bool {
	return IsDraft(name) && BaseOf(name) == base
}

// Family returns the drafts of base found in names, in input order.
func Family(names []string, base string) []string {
	var family []string
	for _, n := range names {
		if InFamily(n, base) {
			family = append(family, n)
		}
	}
	return family
}

// Visible returns the sorted, de-duplicated base names in names. Drafts are
// never user-visible.
func Visible(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	visible := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || IsDraft(n) {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		visible = append(visible, n)
	}
	sort.Strings(visible)
	return visible
}

// ValidBase reports whether name can be used as a base name.
func ValidBase(name string) bool {
	return strings.TrimSpace(name) != "" && !IsDraft(name)
}
