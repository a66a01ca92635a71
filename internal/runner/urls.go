// File: internal/runner/urls.go
package runner

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/kfallows/citewright/internal/catalog"
)

// placeholderRe matches {name} and {ns.name} template placeholders.
var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_.-]+)\}`)

// BuildURL rewrites a URL template in two fixed, independent passes: first
// un-namespaced placeholders are filled from the article info, then
// source-namespaced placeholders ({source.key}) are filled from the effective
// parameters. Substituted values are percent-encoded; placeholders with no
// matching key are left untouched by both passes.
func BuildURL(tpl string, article, params map[string]string) string {
	out := substitute(tpl, "", article)
	return substitute(out, "source.", params)
}

// substitute fills placeholders under one namespace prefix from values.
// With an empty prefix only namespace-free placeholders are considered, so
// the article pass cannot clobber {source.*} or {user.*} placeholders.
func substitute(s, prefix string, values map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		key := m[1 : len(m)-1]
		if prefix == "" {
			if strings.Contains(key, ".") {
				return m
			}
		} else {
			if !strings.HasPrefix(key, prefix) {
				return m
			}
			key = key[len(prefix):]
		}
		if v, ok := values[key]; ok {
			return url.QueryEscape(v)
		}
		return m
	})
}

// ActionLists returns the phase's action-list sequence, with a provider
// sequence taking precedence over the source's when the provider defines one.
func ActionLists(p catalog.Provider, s catalog.Source, phase Phase) [][]catalog.Action {
	switch phase {
	case PhaseLogin:
		if len(p.Login) > 0 {
			return p.Login
		}
		return s.Login
	default:
		if len(p.Search) > 0 {
			return p.Search
		}
		return s.Search
	}
}
