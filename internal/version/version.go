package version

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Tier identifies which comparison strategy ordered a batch.
type Tier int

const (
	// TierDotted compares up to three dot-separated integers ("1.20.4", "v1.7").
	TierDotted Tier = iota + 1
	// TierTrailingInt compares the last run of digits ("build117", "2887").
	TierTrailingInt
	// TierLexical compares raw strings byte by byte.
	TierLexical
)

// String returns a stable name for the tier.
func (t Tier) String() string {
	switch t {
	case TierDotted:
		return "dotted"
	case TierTrailingInt:
		return "trailing_int"
	case TierLexical:
		return "lexical"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// maxComponents is the number of numeric components a dotted version may carry.
const maxComponents = 3

// ErrNotDotted is returned by Parse when a string has no dotted numeric form.
var ErrNotDotted = errors.New("not a dotted numeric version")

// Version is a parsed dotted numeric version. Missing trailing components are 0.
type Version struct {
	Prefix string
	Major  uint64
	Minor  uint64
	Patch  uint64
}

// Parse parses s as a dotted numeric version: an optional single ASCII letter
// prefix followed by one to three dot-separated non-negative integers.
func Parse(s string) (Version, error) {
	var v Version
	body := s
	if len(body) > 0 && isLetter(body[0]) {
		v.Prefix = body[:1]
		body = body[1:]
	}
	if body == "" {
		return Version{}, fmt.Errorf("%w: %q", ErrNotDotted, s)
	}

	parts := strings.Split(body, ".")
	if len(parts) > maxComponents {
		return Version{}, fmt.Errorf("%w: %q has %d components", ErrNotDotted, s, len(parts))
	}

	var nums [maxComponents]uint64
	for i, p := range parts {
		if p == "" || !allDigits(p) {
			return Version{}, fmt.Errorf("%w: %q", ErrNotDotted, s)
		}
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: %v", ErrNotDotted, s, err)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

// Compare orders two parsed versions by their numeric triple. The prefix is ignored.
func (v Version) Compare(o Version) int {
	if c := cmp.Compare(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, o.Minor); c != 0 {
		return c
	}
	return cmp.Compare(v.Patch, o.Patch)
}

// String renders the canonical triple form, keeping any prefix.
func (v Version) String() string {
	return fmt.Sprintf("%s%d.%d.%d", v.Prefix, v.Major, v.Minor, v.Patch)
}

// TrailingInt returns the value of the last maximal run of ASCII digits in s.
// ok is false when s contains no digits or the run overflows uint64.
func TrailingInt(s string) (n uint64, ok bool) {
	end := -1
	for i := len(s) - 1; i >= 0; i-- {
		if isDigit(s[i]) {
			end = i + 1
			break
		}
	}
	if end < 0 {
		return 0, false
	}
	start := end - 1
	for start > 0 && isDigit(s[start-1]) {
		start--
	}
	n, err := strconv.ParseUint(s[start:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Compare orders a and b in ascending sense, choosing the tier as if the pair
// were a batch of two.
func Compare(a, b string) int {
	if va, err := Parse(a); err == nil {
		if vb, err := Parse(b); err == nil {
			return va.Compare(vb)
		}
	}
	if na, ok := TrailingInt(a); ok {
		if nb, ok := TrailingInt(b); ok {
			return cmp.Compare(na, nb)
		}
	}
	return strings.Compare(a, b)
}

// FallbackWarning reports that a batch could not be ordered by dotted
// comparison and was ordered by a coarser tier instead.
type FallbackWarning struct {
	// Tier is the tier that was actually used.
	Tier Tier
	// Offender is the first input that could not be parsed by the finer tier.
	Offender string
	// Size is the number of elements in the batch.
	Size int
}

func (w *FallbackWarning) Error() string {
	return fmt.Sprintf("version ordering fell back to %s tier for %d values (first offender %q)",
		w.Tier, w.Size, w.Offender)
}

// SortDescending returns a new slice holding vs ordered newest first.
// The sort is stable; vs is not modified.
func SortDescending(vs []string) []string {
	out, _ := Sort(vs)
	return out
}

// Sort is SortDescending that also reports a fallback warning when the
// batch was ordered by the trailing-integer or lexical tier.
func Sort(vs []string) ([]string, *FallbackWarning) {
	out := slices.Clone(vs)
	if out == nil {
		out = []string{}
	}
	if len(out) < 2 {
		return out, nil
	}

	tier, offender := selectTier(out)
	switch tier {
	case TierDotted:
		keys := make(map[string]Version, len(out))
		for _, s := range out {
			keys[s], _ = Parse(s)
		}
		slices.SortStableFunc(out, func(a, b string) int {
			return keys[b].Compare(keys[a])
		})
		return out, nil
	case TierTrailingInt:
		keys := make(map[string]uint64, len(out))
		for _, s := range out {
			keys[s], _ = TrailingInt(s)
		}
		slices.SortStableFunc(out, func(a, b string) int {
			return cmp.Compare(keys[b], keys[a])
		})
	default:
		slices.SortStableFunc(out, func(a, b string) int {
			return strings.Compare(b, a)
		})
	}
	return out, &FallbackWarning{Tier: tier, Offender: offender, Size: len(out)}
}

// selectTier picks the finest tier every element parses under.
func selectTier(vs []string) (Tier, string) {
	offender := ""
	for _, s := range vs {
		if _, err := Parse(s); err != nil {
			offender = s
			break
		}
	}
	if offender == "" {
		return TierDotted, ""
	}
	for _, s := range vs {
		if _, ok := TrailingInt(s); !ok {
			return TierLexical, s
		}
	}
	return TierTrailingInt, offender
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}
