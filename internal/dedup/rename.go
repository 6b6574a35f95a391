package dedup

import (
	"strconv"
	"strings"

	"github.com/John-Robertt/nodededup/internal/model"
)

// rename keeps every node and suffixes each name that occurs more than once
// with its 1-based occurrence number. Numbers are zero-padded to the width of
// the largest repeat count in the input and spelled with the template glyphs.
// found is the number of nodes that share a name with an earlier node.
// Names that occur once are never touched, even when a generated name equals
// one of them: "A","A","A-1" becomes "A-1","A-2","A-1".
func rename(nodes []model.Node, opt Options) (out []model.Node, found int) {
	counts := make(map[string]int, len(nodes))
	for _, n := range nodes {
		counts[n.Name]++
	}
	width := 0
	for _, c := range counts {
		if c > 1 {
			found += c - 1
			width = max(width, len(strconv.Itoa(c)))
		}
	}

	digits := []rune(opt.Template)
	seen := make(map[string]int, len(counts))
	out = make([]model.Node, len(nodes))
	for i, n := range nodes {
		if counts[n.Name] < 2 {
			out[i] = n.Clone()
			continue
		}
		seen[n.Name]++
		out[i] = n.WithName(decorate(n.Name, sequence(seen[n.Name], width, digits), opt))
	}
	return out, found
}

func sequence(n, width int, digits []rune) string {
	s := strconv.Itoa(n)
	if pad := width - len(s); pad > 0 {
		s = strings.Repeat("0", pad) + s
	}
	var b strings.Builder
	for _, r := range s {
		b.WriteRune(digits[r-'0'])
	}
	return b.String()
}

func decorate(name, seq string, opt Options) string {
	if opt.Position == PositionFront {
		return seq + opt.Link + name
	}
	return name + opt.Link + seq
}
