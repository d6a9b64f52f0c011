package htmldoc

import (
	"fmt"
	"sort"
)

// Edit replaces Src[Start:End] with Text. Start == End inserts.
type Edit struct {
	Start int
	End   int
	Text  string
}

// Splice applies edits computed against one parse of src. Edits are applied
// in descending offset order so earlier offsets stay valid; inserts sharing
// an offset keep the order they were given in.
func Splice(src []byte, edits []Edit) ([]byte, error) {
	type indexed struct {
		Edit
		seq int
	}
	list := make([]indexed, len(edits))
	for i, e := range edits {
		if e.Start < 0 || e.End < e.Start || e.End > len(src) {
			return nil, fmt.Errorf("htmldoc: edit [%d,%d) out of range 0..%d", e.Start, e.End, len(src))
		}
		list[i] = indexed{Edit: e, seq: i}
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Start != b.Start {
			return a.Start > b.Start
		}
		// At a shared offset the replacement goes first, then inserts.
		if (a.End > a.Start) != (b.End > b.Start) {
			return a.End > a.Start
		}
		return a.seq > b.seq
	})

	out := append([]byte(nil), src...)
	bound := len(src)
	for _, e := range list {
		if e.End > bound {
			return nil, fmt.Errorf("htmldoc: overlapping edit [%d,%d)", e.Start, e.End)
		}
		out = append(out[:e.Start], append([]byte(e.Text), out[e.End:]...)...)
		bound = e.Start
	}
	return out, nil
}

// BlockStart widens start backwards over the whitespace that precedes a
// block on its line, so removing the block leaves no blank line behind.
func BlockStart(src []byte, start int) int {
	i := start
	for i > 0 && (src[i-1] == ' ' || src[i-1] == '\t') {
		i--
	}
	if i > 0 && src[i-1] == '\n' {
		i--
		if i > 0 && src[i-1] == '\r' {
			i--
		}
	}
	return i
}
