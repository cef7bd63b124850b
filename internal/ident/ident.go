// Package ident formats stable, human-readable record identifiers.
package ident

import "fmt"

// Generate returns prefix + "_" + index zero-padded to five digits, e.g.
// Generate("user", 7) == "user_00007". Wider indices keep their natural width.
// Callers own uniqueness: the same (prefix, index) always yields the same id.
func Generate(prefix string, index int) string {
	if index < 0 {
		panic(fmt.Sprintf("ident: negative index %d", index))
	}
	return fmt.Sprintf("%s_%05d", prefix, index)
}
