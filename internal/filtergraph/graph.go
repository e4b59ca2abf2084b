// Package filtergraph compiles a project snapshot into ffmpeg invocations.
// The filter graph is assembled as typed nodes with labelled pads and only
// turned into -filter_complex text by Graph.String.
package filtergraph

import (
	"fmt"
	"strconv"
	"strings"
)

// Pad is a link label, or an input stream reference such as "0:v".
type Pad string

func StreamPad(input int, stream string) Pad {
	return Pad(fmt.Sprintf("%d:%s", input, stream))
}

func (p Pad) stream() bool {
	return strings.Contains(string(p), ":")
}

type NodeKind string

const (
	NodeSource     NodeKind = "source"
	NodeVideo      NodeKind = "video"
	NodeAudio      NodeKind = "audio"
	NodeOverlay    NodeKind = "overlay"
	NodeText       NodeKind = "text"
	NodeMix        NodeKind = "mix"
	NodeOutput     NodeKind = "output"
	NodePalette    NodeKind = "palette"
	NodePaletteUse NodeKind = "paletteuse"
)

// Arg is one filter option. Positional args have no Key. Expr values are
// emitted single-quoted so commas inside expressions survive graph parsing.
type Arg struct {
	Key   string
	Value string
	Expr  bool
}

type Filter struct {
	Name string
	Args []Arg
}

// F builds a filter from alternating key, value pairs.
func F(name string, kv ...string) Filter {
	f := Filter{Name: name}
	for i := 0; i+1 < len(kv); i += 2 {
		f.Args = append(f.Args, Arg{Key: kv[i], Value: kv[i+1]})
	}
	return f
}

// Expr appends an expression-valued option.
func (f Filter) Expr(key, value string) Filter {
	f.Args = append(f.Args, Arg{Key: key, Value: value, Expr: true})
	return f
}

func (f Filter) With(key, value string) Filter {
	f.Args = append(f.Args, Arg{Key: key, Value: value})
	return f
}

func (f Filter) String() string {
	if len(f.Args) == 0 {
		return f.Name
	}
	parts := make([]string, len(f.Args))
	for i, a := range f.Args {
		var v string
		if a.Expr {
			v = "'" + a.Value + "'"
		} else {
			v = escapeGraph(escapeOption(a.Value))
		}
		if a.Key == "" {
			parts[i] = v
		} else {
			parts[i] = a.Key + "=" + v
		}
	}
	return f.Name + "=" + strings.Join(parts, ":")
}

// Arg returns the value of key, if present.
func (f Filter) Arg(key string) (string, bool) {
	for _, a := range f.Args {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

type Node struct {
	Kind    NodeKind
	Inputs  []Pad
	Filters []Filter
	Outputs []Pad
}

func (n Node) String() string {
	var b strings.Builder
	for _, in := range n.Inputs {
		b.WriteString("[" + string(in) + "]")
	}
	for i, f := range n.Filters {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.String())
	}
	for _, out := range n.Outputs {
		b.WriteString("[" + string(out) + "]")
	}
	return b.String()
}

type Graph struct {
	nodes []Node
	seq   map[string]int
}

func NewGraph() *Graph {
	return &Graph{seq: make(map[string]int)}
}

// Label returns a fresh link label with the given prefix. Labels are numbered
// in creation order so identical inputs yield identical graphs.
func (g *Graph) Label(prefix string) Pad {
	n := g.seq[prefix]
	g.seq[prefix] = n + 1
	return Pad(prefix + strconv.Itoa(n))
}

// Add appends a filter chain reading inputs and writing one new output pad.
func (g *Graph) Add(kind NodeKind, prefix string, inputs []Pad, filters ...Filter) Pad {
	out := g.Label(prefix)
	g.nodes = append(g.nodes, Node{Kind: kind, Inputs: inputs, Filters: filters, Outputs: []Pad{out}})
	return out
}

func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

// Count returns the number of nodes of kind.
func (g *Graph) Count(kind NodeKind) int {
	n := 0
	for _, node := range g.nodes {
		if node.Kind == kind {
			n++
		}
	}
	return n
}

// Validate checks every link label is produced once, before it is read, and
// read at most once.
func (g *Graph) Validate() error {
	produced := make(map[Pad]bool)
	consumed := make(map[Pad]bool)
	for i, n := range g.nodes {
		for _, in := range n.Inputs {
			if in.stream() {
				continue
			}
			if !produced[in] {
				return fmt.Errorf("node %d reads unknown label %q", i, in)
			}
			if consumed[in] {
				return fmt.Errorf("node %d reads label %q twice", i, in)
			}
			consumed[in] = true
		}
		for _, out := range n.Outputs {
			if produced[out] {
				return fmt.Errorf("node %d redefines label %q", i, out)
			}
			produced[out] = true
		}
	}
	return nil
}

func (g *Graph) String() string {
	parts := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ";")
}

var (
	optionEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`)
	graphEscaper  = strings.NewReplacer(`\`, `\\`, `'`, `\'`, `[`, `\[`, `]`, `\]`, `,`, `\,`, `;`, `\;`)
	textEscaper   = strings.NewReplacer(`\`, `\\`, `%`, `\%`)
)

// escapeOption protects a value inside a filter's option list.
func escapeOption(s string) string { return optionEscaper.Replace(s) }

// escapeGraph protects an already option-escaped value inside the graph.
func escapeGraph(s string) string { return graphEscaper.Replace(s) }

// EscapeText prepares literal drawtext text so backslashes and percent signs
// are not treated as expansion sequences. Option and graph level escaping
// are applied when the filter is serialised.
func EscapeText(s string) string { return textEscaper.Replace(s) }
