// File: internal/browser/executor_test.go
package browser

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kfallows/citewright/internal/catalog"
)

func TestActionTimeout(t *testing.T) {
	t.Run("defaults when the action carries no timeout", func(t *testing.T) {
		timeout, guard := actionTimeout(catalog.Action{Kind: "click", Selector: "#x"})
		assert.Equal(t, defaultActionTimeout, timeout)
		assert.Equal(t, timeout, guard)
	})

	t.Run("timeout_ms overrides the default", func(t *testing.T) {
		timeout, guard := actionTimeout(catalog.Action{Kind: "waitvisible", Selector: "#x", TimeoutMs: 5000})
		assert.Equal(t, 5*time.Second, timeout)
		assert.Equal(t, timeout, guard)
	})

	t.Run("sleep gets guard headroom beyond its full duration", func(t *testing.T) {
		timeout, guard := actionTimeout(catalog.Action{Kind: "sleep", TimeoutMs: 1500})
		assert.Equal(t, 1500*time.Millisecond, timeout)
		assert.Greater(t, guard, timeout,
			"a guard equal to the sleep duration would always expire before the sleep finishes")
	})

	t.Run("sleep without timeout_ms still outlives its guardless equivalent", func(t *testing.T) {
		timeout, guard := actionTimeout(catalog.Action{Kind: "sleep"})
		assert.Greater(t, guard, timeout)
	})
}

func TestJSONEncode(t *testing.T) {
	cases := []struct {
		name     string
		selector string
		want     string
	}{
		{"plain", "#cite", `"#cite"`},
		{"embedded quotes", `a[href="/x"]`, `"a[href=\"/x\"]"`},
		{"backslash", `input[name=a\\b]`, `"input[name=a\\\\b]"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, jsonEncode(tc.selector))
		})
	}
}
