package reconcile

import (
	"regexp"
	"strings"

	"github.com/fatotools/wms-loader/internal/schema"
)

// Classifier is one junk-detection rule applied to a normalized header
// label. Rules run in order; the first match decides, so broader rules
// belong later in the chain.
type Classifier struct {
	Name  string
	Match func(label string) bool
}

// placeholderLabels are tokens that sometimes leak into header rows when a
// spreadsheet is exported with filler cells above the data.
var placeholderLabels = map[string]struct{}{
	"-":    {},
	"--":   {},
	".":    {},
	"...":  {},
	"n/a":  {},
	"na":   {},
	"n/d":  {},
	"nd":   {},
	"null": {},
	"none": {},
	"nan":  {},
}

var (
	driveLetterRe = regexp.MustCompile(`^[A-Za-z]:[\\/]`)
	timestampRe   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}([ T]\d{2}:\d{2}(:\d{2})?)?$`)
)

// DefaultClassifiers builds the standard chain. signatures are report
// banner strings as configured; matching is case-insensitive.
func DefaultClassifiers(signatures []string) []Classifier {
	sigs := make([]string, 0, len(signatures))
	for _, s := range signatures {
		sigs = append(sigs, strings.ToLower(schema.NormalizeLabel(s)))
	}
	return []Classifier{
		{Name: "empty", Match: func(label string) bool {
			return label == ""
		}},
		{Name: "synthetic", Match: func(label string) bool {
			return strings.HasPrefix(strings.ToLower(label), "unnamed")
		}},
		{Name: "banner", Match: func(label string) bool {
			lower := strings.ToLower(label)
			for _, sig := range sigs {
				if strings.HasPrefix(lower, sig) {
					return true
				}
			}
			return false
		}},
		{Name: "placeholder", Match: func(label string) bool {
			_, ok := placeholderLabels[strings.ToLower(label)]
			return ok
		}},
		{Name: "path", Match: looksLikePath},
		{Name: "timestamp", Match: func(label string) bool {
			return timestampRe.MatchString(label)
		}},
	}
}

// looksLikePath catches header cells that carry a file location instead of
// a column name. Labels with a single separator, like "Entrada/Saída",
// are legitimate and stay.
func looksLikePath(label string) bool {
	if driveLetterRe.MatchString(label) {
		return true
	}
	if strings.HasPrefix(label, `\\`) {
		return true
	}
	return strings.Count(label, "/")+strings.Count(label, `\`) >= 2
}
