// File: internal/catalog/catalog_test.go
package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEmbeddedCatalog(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err, "embedded catalog must always parse")

	t.Run("ProvidersResolve", func(t *testing.T) {
		p, err := c.Provider("campuslib")
		require.NoError(t, err)
		assert.Equal(t, "campuslib", p.ID)
		assert.Equal(t, "primo", p.DefaultSource, "campuslib forces its default source")
		assert.NotEmpty(t, p.Login, "proxy provider overrides the login sequence")
		assert.Equal(t, "CAMPUS", p.Params["primo"]["vid"])
	})

	t.Run("SourcesResolve", func(t *testing.T) {
		s, err := c.Source("primo")
		require.NoError(t, err)
		assert.NotEmpty(t, s.LoggedIn, "sources carry a logged-in indicator selector")
		assert.NotEmpty(t, s.Search, "sources carry a search sequence")
		assert.NotEmpty(t, s.DefaultParams["vid"])
	})

	t.Run("UnknownIDsError", func(t *testing.T) {
		_, err := c.Provider("nope")
		assert.ErrorContains(t, err, "unknown provider")
		_, err = c.Source("nope")
		assert.ErrorContains(t, err, "unknown source")
	})

	t.Run("IDsAreSorted", func(t *testing.T) {
		assert.IsNonDecreasing(t, c.ProviderIDs())
		assert.IsNonDecreasing(t, c.SourceIDs())
		assert.Contains(t, c.SourceIDs(), "worldcat")
	})
}

func TestLoadOverlayFile(t *testing.T) {
	overlay := `{
		"providers": {
			"campuslib": {"name": "Replaced", "default_source": "worldcat"}
		},
		"sources": {
			"locallib": {"name": "Local Library", "start": "https://opac.local/search?q={title}"}
		}
	}`
	path := filepath.Join(t.TempDir(), "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(overlay), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	p, err := c.Provider("campuslib")
	require.NoError(t, err)
	assert.Equal(t, "Replaced", p.Name, "file entries replace embedded entries")
	assert.Equal(t, "worldcat", p.DefaultSource)

	s, err := c.Source("locallib")
	require.NoError(t, err)
	assert.Equal(t, "Local Library", s.Name)

	// Untouched embedded entries survive the overlay.
	_, err = c.Source("primo")
	assert.NoError(t, err)
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse catalog file")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read catalog file")
}

func TestActionIsNotification(t *testing.T) {
	assert.True(t, Action{Message: "hi"}.IsNotification())
	assert.False(t, Action{Message: "hi", Kind: "click"}.IsNotification(),
		"an executable action with a message is not a pure notification")
	assert.False(t, Action{Kind: "click"}.IsNotification())
}

func TestAddSourceAndProvider(t *testing.T) {
	c := New()
	c.AddSource("custom", Source{
		Name: "Custom",
		StartFunc: func(article, params map[string]string) string {
			return "https://custom.example/" + article["doi"]
		},
	})
	c.AddProvider("direct", Provider{Name: "Direct"})

	s, err := c.Source("custom")
	require.NoError(t, err)
	require.NotNil(t, s.StartFunc)
	assert.Equal(t, "https://custom.example/10.1000/182",
		s.StartFunc(map[string]string{"doi": "10.1000/182"}, nil))

	p, err := c.Provider("direct")
	require.NoError(t, err)
	assert.Equal(t, "direct", p.ID)
}
