/*Package config reads grainflow scenario files: the nested block grammar
from spec.md §6 (Dimensions, Bounds, Boundary, NTypes, Force-grid,
Template, Fill, Integrator, Modifier, HSRelax, Relax).

The parser generalizes the teacher's lib/format package, which hand-rolls
a tokenizer/parser for a much smaller mini-language (printf-verb file
format strings with a comma-separated "sequence format" range syntax,
e.g. "0..100 - 63"). That package's approach -- scan raw text for
structural delimiters, build small recursive structures, and attach
file-position context to every error -- is generalized here from a flat
sequence grammar to arbitrarily nested blocks, which the scenario grammar
needs (Fill: Area { Excluded: Shape {...} }) and lib/format's flat
design does not support; that is also why gopkg.in/gcfg.v1 (which only
handles flat section/key-value files) was not a fit either, see
DESIGN.md.
*/
package config

import (
	"fmt"
	"strings"
)

// Block is one "Key: Value { children }" entry in a scenario file. Value
// holds everything between ':' and the opening '{' (or the terminating
// ';'/'}'), trimmed of whitespace; interpretation of Value (as a number, a
// comma list, a kernel name, etc.) is left to the caller. An anonymous
// list entry (e.g. ":0,10" inside a Bounds block) has an empty Key.
type Block struct {
	Key      string
	Value    string
	Children []*Block
	Line     int
}

// Args splits Value on commas and trims each piece, which is how the
// grammar represents tuples (":ti, tj, Kernel", "Number: 500").
func (b *Block) Args() []string {
	if b.Value == "" {
		return nil
	}
	parts := strings.Split(b.Value, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

// Find returns the first child with the given key (case-insensitive), or
// nil.
func (b *Block) Find(key string) *Block {
	for _, c := range b.Children {
		if strings.EqualFold(c.Key, key) {
			return c
		}
	}
	return nil
}

// FindAll returns every child with the given key (case-insensitive), in
// document order.
func (b *Block) FindAll(key string) []*Block {
	var out []*Block
	for _, c := range b.Children {
		if strings.EqualFold(c.Key, key) {
			out = append(out, c)
		}
	}
	return out
}

func (b *Block) String() string {
	return fmt.Sprintf("Block{Key:%q Value:%q line:%d children:%d}",
		b.Key, b.Value, b.Line, len(b.Children))
}
