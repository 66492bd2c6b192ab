package query

import (
	"strings"
	"unicode"

	"github.com/juju/errors"
)

// DefaultSort is newest first.
const DefaultSort = "-_id"

// SortToken is a parsed "[+|-]field" sort parameter.
type SortToken struct {
	Field      string
	Descending bool
}

// ParseSortToken splits a sort token. A missing sign sorts ascending.
func ParseSortToken(token string) (SortToken, bool) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SortToken{}, false
	}
	var st SortToken
	switch token[0] {
	case '+':
		token = token[1:]
	case '-':
		st.Descending = true
		token = token[1:]
	}
	if token == "" {
		return SortToken{}, false
	}
	st.Field = token
	return st, true
}

// ParseSort converts a wire sort token into an mgo sort field. Wire fields
// are camelCase and stored fields snake_case; "id" maps to "_id". When
// allowed is non-empty the stored field must be in it.
func ParseSort(token string, allowed ...string) (string, error) {
	st, ok := ParseSortToken(token)
	if !ok {
		return DefaultSort, nil
	}
	field := SnakeCase(st.Field)
	if field == "id" {
		field = "_id"
	}
	if len(allowed) > 0 && !contains(allowed, field) {
		return "", errors.NotValidf("sort field %q", st.Field)
	}
	if st.Descending {
		return "-" + field, nil
	}
	return field, nil
}

// SnakeCase converts camelCase to snake_case. Dots are kept so nested
// paths convert segment by segment.
func SnakeCase(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	prevLower := false
	for _, r := range s {
		if unicode.IsUpper(r) {
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
			continue
		}
		b.WriteRune(r)
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
