// File: internal/runner/params.go
package runner

// MergeParams shallow-merges parameter layers in priority order: a later
// layer wins on key collision. Inputs are never mutated and nil layers are
// skipped. The result is always a fresh, non-nil map.
func MergeParams(layers ...map[string]string) map[string]string {
	merged := make(map[string]string)
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}
