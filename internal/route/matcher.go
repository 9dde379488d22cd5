// Package route recognizes thumbnail URLs and turns them into render specs.
//
// A thumbnail URL has the form
//
//	<prefix><base><name>_<dimensions>[-<gravity>][-<options>][-<signature>]<ext>
//
// where dimensions is one of Wx, xH, WxH or WxxH, gravity is a compass
// abbreviation, options is "raw", the signature is present when signing is
// enabled and ext is jpg, jpeg, png or gif in any case.
package route

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"thumbnail-proxy-go/internal/model"
)

// gravities maps URL abbreviations to gravities.
var gravities = map[string]model.Gravity{
	"nw": model.GravityNorthWest,
	"n":  model.GravityNorth,
	"ne": model.GravityNorthEast,
	"w":  model.GravityWest,
	"c":  model.GravityCenter,
	"e":  model.GravityEast,
	"sw": model.GravitySouthWest,
	"s":  model.GravitySouth,
	"se": model.GravitySouthEast,
}

// options lists the recognized option tokens.
var options = []string{"raw"}

const (
	dimensionGrammar = `\d+x|x\d+|\d+x\d+|\d+xx\d+`
	extensionGrammar = `\.(?i:jpg|jpeg|png|gif)`
)

// gravityGrammar is the alternation of gravity abbreviations, longest first.
var gravityGrammar = func() string {
	keys := make([]string, 0, len(gravities))
	for k := range gravities {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return strings.Join(keys, "|")
}()

// Matcher classifies request paths as thumbnail requests.
// It is immutable after construction and safe for concurrent use.
type Matcher struct {
	routes []*regexp.Regexp
}

// NewMatcher compiles one pattern per base path, preserving their order.
// keyLength > 0 adds an optional signature of exactly that many lowercase hex digits.
func NewMatcher(bases []string, prefix string, keyLength int) (*Matcher, error) {
	if len(bases) == 0 {
		return nil, fmt.Errorf("route: at least one base path is required")
	}
	if keyLength < 0 {
		return nil, fmt.Errorf("route: negative key length %d", keyLength)
	}

	m := &Matcher{routes: make([]*regexp.Regexp, 0, len(bases))}
	for _, base := range bases {
		re, err := regexp.Compile(pattern(prefix, base, keyLength))
		if err != nil {
			return nil, fmt.Errorf("route: compile pattern for %q: %w", base, err)
		}
		m.routes = append(m.routes, re)
	}
	return m, nil
}

func pattern(prefix, base string, keyLength int) string {
	var b strings.Builder
	b.WriteString("^")
	b.WriteString(regexp.QuoteMeta(prefix))
	fmt.Fprintf(&b, "(?P<base>%s)", regexp.QuoteMeta(base))
	b.WriteString("(?P<name>.+)")
	fmt.Fprintf(&b, "_(?P<dim>%s)", dimensionGrammar)
	fmt.Fprintf(&b, "(?:-(?P<gravity>%s))?", gravityGrammar)
	fmt.Fprintf(&b, "(?:-(?P<options>%s))?", strings.Join(options, "|"))
	if keyLength > 0 {
		fmt.Fprintf(&b, "(?:-(?P<sig>[0-9a-f]{%d}))?", keyLength)
	}
	fmt.Fprintf(&b, "(?P<ext>%s)$", extensionGrammar)
	return b.String()
}

// Match returns the captures of the first pattern that matches path.
// The second result is false when path is not a thumbnail request.
func (m *Matcher) Match(path string) (model.MatchResult, bool) {
	for _, re := range m.routes {
		groups := re.FindStringSubmatch(path)
		if groups == nil {
			continue
		}
		group := func(name string) string {
			if i := re.SubexpIndex(name); i > 0 {
				return groups[i]
			}
			return ""
		}
		return model.MatchResult{
			Base:       group("base"),
			Name:       group("name"),
			Dimensions: group("dim"),
			Gravity:    group("gravity"),
			Options:    group("options"),
			Signature:  group("sig"),
			Ext:        group("ext"),
		}, true
	}
	return model.MatchResult{}, false
}
