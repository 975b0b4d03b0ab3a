// Package valid implements the validation and normalization utilities
// that every query-template-assembling component must call before
// interpolating a name, and the string normalization helpers the
// similarity kernel uses. Every validator here is pure and synchronous;
// a violation is always an *ererr.Error of kind validation and is never
// retried.
package valid

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/entityresolve/er/pkg/ererr"
)

var (
	collectionNameRe = regexp.MustCompile(`^[A-Za-z0-9_-]{1,256}$`)
 fieldNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)
)

// reservedKeywords cannot be used as field names because the SQLite
// reference store and the query builder both reserve them.
var reservedKeywords = map[string]struct{}{
 "select": {}, "insert": {}, "update": {}, "delete": {}, "drop": {},
 "where": {}, "from": {}, "table": {}, "union": {}, "exec": {},
}

// metacharacterRe matches a conservative set of SQL/AQL metacharacters
// that must never reach a query template outside of a bound parameter.
var metacharacterRe = regexp.MustCompile(`[;'"\\` + "`" + `]|--|/\*|\*/`)

			// CollectionName validates a collection identifier: letters, digits, '_',
			// '-'; length 1-256.
			func CollectionName(name string) (string, error) {
				if !collectionNameRe.MatchString(name) {
					return "", ererr.Validation("valid.CollectionName",
						fmt.Errorf("invalid collection name %q: must match %s", name, collectionNameRe.String()))
				}
				return name, nil
			}

			// FieldName validates a (possibly dotted) field path: each segment is a
			// valid identifier, total length 1-128, and the whole name must not be a
			// reserved keyword.
			func FieldName(name string) (string, error) {
				if len(name) < 1 || len(name) > 128 {
					return "", ererr.Validation("valid.FieldName",
						fmt.Errorf("invalid field name %q: length must be 1-128", name))
				}
				if !fieldNameRe.MatchString(name) {
					return "", ererr.Validation("valid.FieldName",
						fmt.Errorf("invalid field name %q: must match %s", name, fieldNameRe.String()))
				}
				if _, reserved := reservedKeywords[strings.ToLower(name)]; reserved {
					return "", ererr.Validation("valid.FieldName",
						fmt.Errorf("field name %q is a reserved keyword", name))
				}
				return name, nil
			}

			// IndexName validates a view/index/analyzer name using the same grammar
			// as collection names.
			func IndexName(name string) (string, error) {
				if !collectionNameRe.MatchString(name) {
					return "", ererr.Validation("valid.IndexName",
						fmt.Errorf("invalid index/view name %q", name))
				}
				return name, nil
			}

			// RejectMetacharacters fails if s contains a SQL/AQL metacharacter,
			// satisfying invariant 8: no unsafely-interpolated string reaches a query
			// template. Bound parameters (values, not identifiers) are exempt from
			// this check — only identifiers destined for raw interpolation must pass
			// it.
			func RejectMetacharacters(op, s string) error {
				if metacharacterRe.MatchString(s) {
					return ererr.Validation(op, fmt.Errorf("value %q contains disallowed metacharacters", s))
				}
				return nil
			}

			// NullMode selects the field similarity kernel's handling of values
			// absent from one side of a comparison; Normalize does not use it.
			type NullMode string

			const (
				NullSkip NullMode = "skip"
				NullZero NullMode = "zero"
				NullDefault NullMode = "default"
			)

			// NormalizeOptions controls the string normalization applied before
			// comparison or blocking-key computation.
			type NormalizeOptions struct {
				Lower bool
				Strip bool
				CollapseWhitespace bool
			}

			// Normalize applies the configured transforms, idempotently: calling it
			// twice on its own output returns the same string.
			func Normalize(s string, opts NormalizeOptions) string {
				if opts.Strip {
					s = strings.TrimSpace(s)
				}
				if opts.CollapseWhitespace {
					s = collapseWhitespace(s)
				}
				if opts.Lower {
					s = strings.ToLower(s)
				}
				return s
			}

			func collapseWhitespace(s string) string {
				var b strings.Builder
				prevSpace := false
				for _, r := range strings.TrimSpace(s) {
					if unicode.IsSpace(r) {
						if !prevSpace {
							b.WriteByte(' ')
						}
						prevSpace = true
						continue
					}
					prevSpace = false
					b.WriteRune(r)
				}
				return b.String()
			}

			// AlphanumericOnly strips everything but letters and digits, lower-cased;
			// used for comparison-only normalization (e.g. before Jaccard token
			// comparison) and is idempotent.
			func AlphanumericOnly(s string) string {
				var b strings.Builder
				for _, r := range s {
					if unicode.IsLetter(r) || unicode.IsDigit(r) {
						b.WriteRune(unicode.ToLower(r))
					}
				}
				return b.String()
			}

			// DigitsOnly removes every non-digit rune, the computed-field helper used
			// by exact-composite-key blocking on phone numbers.
			func DigitsOnly(s string) string {
				var b strings.Builder
				for _, r := range s {
					if unicode.IsDigit(r) {
						b.WriteRune(r)
					}
				}
				return b.String()
			}
