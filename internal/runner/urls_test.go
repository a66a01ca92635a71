// File: internal/runner/urls_test.go
package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kfallows/citewright/internal/catalog"
)

func TestBuildURL(t *testing.T) {
	article := map[string]string{
		"title": "Maps & Territories",
		"doi":   "10.1000/182",
	}
	params := map[string]string{
		"vid":  "CAMPUS/MAIN",
		"lang": "en_US",
	}

	t.Run("BothPassesApplyInOrder", func(t *testing.T) {
		got := BuildURL("https://x.example/search?q={title}&vid={source.vid}&lang={source.lang}", article, params)
		assert.Equal(t,
			"https://x.example/search?q=Maps+%26+Territories&vid=CAMPUS%2FMAIN&lang=en_US",
			got)
	})

	t.Run("ArticlePassLeavesNamespacedPlaceholders", func(t *testing.T) {
		// Only the first pass runs when params carry no matching key: the
		// namespaced placeholder must survive pass one untouched.
		got := BuildURL("q={title}&v={source.missing}", article, params)
		assert.Equal(t, "q=Maps+%26+Territories&v={source.missing}", got)
	})

	t.Run("ParamPassLeavesArticlePlaceholders", func(t *testing.T) {
		got := BuildURL("q={unknown}&v={source.vid}", article, params)
		assert.Equal(t, "q={unknown}&v=CAMPUS%2FMAIN", got)
	})

	t.Run("UserPlaceholdersUntouched", func(t *testing.T) {
		got := BuildURL("u={user.username}", article, params)
		assert.Equal(t, "u={user.username}", got)
	})

	t.Run("ValuesArePercentEncoded", func(t *testing.T) {
		got := BuildURL("doi={doi}", article, nil)
		assert.Equal(t, "doi=10.1000%2F182", got)
	})

	t.Run("NoPlaceholdersPassesThrough", func(t *testing.T) {
		tpl := "https://plain.example/path"
		assert.Equal(t, tpl, BuildURL(tpl, article, params))
	})
}

func TestActionLists(t *testing.T) {
	providerLogin := [][]catalog.Action{{{Kind: "click", Selector: "#provider-login"}}}
	sourceLogin := [][]catalog.Action{{{Kind: "click", Selector: "#source-login"}}}
	sourceSearch := [][]catalog.Action{{{Kind: "extract", Selector: "#cite"}}}

	p := catalog.Provider{Login: providerLogin}
	s := catalog.Source{Login: sourceLogin, Search: sourceSearch}

	t.Run("ProviderOverridesSource", func(t *testing.T) {
		got := ActionLists(p, s, PhaseLogin)
		assert.Equal(t, providerLogin, got)
	})

	t.Run("FallsBackToSource", func(t *testing.T) {
		assert.Equal(t, sourceSearch, ActionLists(p, s, PhaseSearch))
		assert.Equal(t, sourceLogin, ActionLists(catalog.Provider{}, s, PhaseLogin))
	})
}
