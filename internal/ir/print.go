package ir

import (
	"strconv"
	"strings"
)

// Token classifies printed text for optional colorizing.
type Token int

const (
	TokenHead    Token = iota // constructor or operator name
	TokenLiteral              // numbers
	TokenString               // quoted labels and symbols
	TokenRef                  // #k sharing labels and ellipses
)

// Printer renders signals as s-expressions.
//
// With Shared set, every interior node reached through two or more edges is
// printed once as "#k=expr" and referenced later as "#k", where k numbers
// shared nodes by first pre-order occurrence. Leaves are always inline.
// Without Shared, shared nodes are re-expanded at each occurrence.
// MaxDepth > 0 truncates deeper subtrees with "...".
type Printer struct {
	Shared   bool
	MaxDepth int

	// Colorize, when set, decorates each token. Nil prints plain text.
	Colorize func(tok Token, text string) string
}

// Print renders s. Output is deterministic and reflects pool identity.
func Print(s Signal, shared bool, maxDepth int) string {
	return Printer{Shared: shared, MaxDepth: maxDepth}.Print(s)
}

// Print renders a single signal.
func (pr Printer) Print(s Signal) string { return pr.PrintList([]Signal{s}) }

// PrintList renders several roots, one per line, sharing labels across the list.
func (pr Printer) PrintList(roots []Signal) string {
	st := &printState{pr: pr, labels: make(map[Signal]int)}
	if pr.Shared {
		st.shared = sharedNodes(roots)
	}
	lines := make([]string, len(roots))
	for i, r := range roots {
		var b strings.Builder
		st.write(&b, r, 1)
		lines[i] = b.String()
	}
	return strings.Join(lines, "\n")
}

// sharedNodes returns interior nodes with two or more incoming edges,
// counting root occurrences as edges.
func sharedNodes(roots []Signal) map[Signal]bool {
	indeg := make(map[Signal]int)
	seen := make(map[Signal]bool)
	var visit func(Signal)
	visit = func(s Signal) {
		if seen[s] {
			return
		}
		seen[s] = true
		for _, k := range s.Children() {
			indeg[k]++
			visit(k)
		}
	}
	for _, r := range roots {
		indeg[r]++
		visit(r)
	}
	shared := make(map[Signal]bool)
	for s, n := range indeg {
		if n >= 2 && s.Arity() > 0 {
			shared[s] = true
		}
	}
	return shared
}

type printState struct {
	pr     Printer
	shared map[Signal]bool
	labels map[Signal]int
	next   int
}

func (st *printState) tok(b *strings.Builder, t Token, text string) {
	if st.pr.Colorize != nil {
		text = st.pr.Colorize(t, text)
	}
	b.WriteString(text)
}

func (st *printState) write(b *strings.Builder, s Signal, depth int) {
	if st.pr.MaxDepth > 0 && depth > st.pr.MaxDepth {
		st.tok(b, TokenRef, "...")
		return
	}
	if st.shared[s] {
		if k, ok := st.labels[s]; ok {
			st.tok(b, TokenRef, "#"+strconv.Itoa(k))
			return
		}
		st.next++
		st.labels[s] = st.next
		st.tok(b, TokenRef, "#"+strconv.Itoa(st.next)+"=")
	}

	n := s.pool.node(s)
	switch n.tag {
	case TagInt:
		st.tok(b, TokenLiteral, strconv.FormatInt(n.payload.Int, 10))
		return
	case TagReal:
		st.tok(b, TokenLiteral, FormatFloat(n.literal().Real))
		return
	}

	st.tok(b, TokenHead, head(n))
	b.WriteByte('(')
	first := true
	sep := func() {
		if !first {
			b.WriteString(", ")
		}
		first = false
	}
	for _, a := range leafArgs(n) {
		sep()
		st.tok(b, a.tok, a.text)
	}
	for _, k := range s.Children() {
		sep()
		st.write(b, k, depth+1)
	}
	b.WriteByte(')')
}

func head(n *node) string {
	switch n.tag {
	case TagBinOp:
		return n.payload.Op.String()
	case TagPrim:
		return n.payload.Text
	case TagIntCast:
		return "int"
	case TagFloatCast:
		return "float"
	}
	return n.tag.String()
}

type leafArg struct {
	tok  Token
	text string
}

func leafArgs(n *node) []leafArg {
	switch n.tag {
	case TagInput:
		return []leafArg{{TokenLiteral, strconv.FormatInt(n.payload.Int, 10)}}
	case TagSelf, TagProj, TagRec:
		return []leafArg{{TokenLiteral, strconv.Itoa(n.payload.Group)}}
	case TagFConst, TagFVar:
		return []leafArg{
			{TokenHead, n.payload.Kind.String()},
			{TokenString, strconv.Quote(n.payload.Text)},
			{TokenString, strconv.Quote(n.payload.File)},
		}
	case TagSoundfile, TagButton, TagCheckbox, TagVSlider, TagHSlider, TagNumEntry, TagVBargraph, TagHBargraph:
		return []leafArg{{TokenString, strconv.Quote(n.payload.Text)}}
	}
	return nil
}
