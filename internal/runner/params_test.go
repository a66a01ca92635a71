// File: internal/runner/params_test.go
package runner

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestMergeParams(t *testing.T) {
	t.Run("LaterLayersWin", func(t *testing.T) {
		sourceDefaults := map[string]string{"a": "1", "b": "2"}
		providerParams := map[string]string{"b": "3", "c": "4"}
		callParams := map[string]string{"c": "5"}

		got := MergeParams(sourceDefaults, providerParams, callParams)
		want := map[string]string{"a": "1", "b": "3", "c": "5"}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("merged params mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("InputsNotMutated", func(t *testing.T) {
		first := map[string]string{"k": "original"}
		second := map[string]string{"k": "override"}

		merged := MergeParams(first, second)
		merged["k"] = "poked"
		merged["new"] = "entry"

		assert.Equal(t, "original", first["k"])
		assert.Equal(t, "override", second["k"])
		assert.NotContains(t, first, "new")
	})

	t.Run("NilLayersSkipped", func(t *testing.T) {
		got := MergeParams(nil, map[string]string{"a": "1"}, nil)
		assert.Equal(t, map[string]string{"a": "1"}, got)
	})

	t.Run("NoLayersYieldsEmptyMap", func(t *testing.T) {
		got := MergeParams()
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}
