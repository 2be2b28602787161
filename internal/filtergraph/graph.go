// Package filtergraph builds ffmpeg -filter_complex graphs out of typed
// stream handles. Labels are allocated by the graph, never by callers.
package filtergraph

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind is the media type carried by a stream.
type Kind int

const (
	Video Kind = iota
	Audio
)

func (k Kind) selector() string {
	if k == Audio {
		return "a"
	}
	return "v"
}

// Stream is a handle to a pad in the graph: either a demuxed input stream
// or the output of a filter stage.
type Stream struct {
	label string
	kind  Kind
	input bool
}

// Label is the bare pad name, e.g. "v0" or "1:a".
func (s Stream) Label() string { return s.label }

// Kind reports the media type of the stream.
func (s Stream) Kind() Kind { return s.kind }

// String renders the bracketed pad reference used in filter_complex.
func (s Stream) String() string { return "[" + s.label + "]" }

func (s Stream) valid() bool { return s.label != "" }

type stage struct {
	inputs  []Stream
	filters []string
	output  Stream
}

func (st stage) String() string {
	var b strings.Builder
	for _, in := range st.inputs {
		b.WriteString(in.String())
	}
	b.WriteString(strings.Join(st.filters, ","))
	b.WriteString(st.output.String())
	return b.String()
}

// Graph accumulates filter stages in insertion order.
type Graph struct {
	stages   []stage
	counters map[string]int
	labels   map[string]bool
	consumed map[string]bool
	err      error
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		counters: make(map[string]int),
		labels:   make(map[string]bool),
		consumed: make(map[string]bool),
	}
}

// Input references stream kind of the idx-th command input.
func (g *Graph) Input(idx int, kind Kind) Stream {
	return Stream{label: fmt.Sprintf("%d:%s", idx, kind.selector()), kind: kind, input: true}
}

// Node adds a stage reading ins and returns a handle to its output,
// labelled prefix0, prefix1, ...
func (g *Graph) Node(ins []Stream, prefix string, kind Kind, filters ...string) Stream {
	return g.add(ins, g.allocate(prefix), kind, filters)
}

// Named adds a stage whose output carries a fixed label such as "outv".
// Reusing a label is recorded as an error.
func (g *Graph) Named(ins []Stream, label string, kind Kind, filters ...string) Stream {
	if g.labels[label] {
		g.fail(fmt.Errorf("filter label %q already defined", label))
		return Stream{}
	}
	return g.add(ins, label, kind, filters)
}

// Chain is Node for the common single-input case.
func (g *Graph) Chain(in Stream, prefix string, filters ...string) Stream {
	return g.Node([]Stream{in}, prefix, in.kind, filters...)
}

func (g *Graph) add(ins []Stream, label string, kind Kind, filters []string) Stream {
	if len(filters) == 0 {
		g.fail(fmt.Errorf("stage %q has no filters", label))
		return Stream{}
	}
	for _, in := range ins {
		if !in.valid() {
			g.fail(fmt.Errorf("stage %q reads an invalid stream", label))
			return Stream{}
		}
		if in.input {
			continue
		}
		if g.consumed[in.label] {
			g.fail(fmt.Errorf("stream %q consumed twice", in.label))
			return Stream{}
		}
		g.consumed[in.label] = true
	}

	out := Stream{label: label, kind: kind}
	g.labels[label] = true
	g.stages = append(g.stages, stage{
		inputs:  append([]Stream(nil), ins...),
		filters: append([]string(nil), filters...),
		output:  out,
	})
	return out
}

func (g *Graph) allocate(prefix string) string {
	for {
		n := g.counters[prefix]
		g.counters[prefix] = n + 1
		label := prefix + strconv.Itoa(n)
		if !g.labels[label] {
			return label
		}
	}
}

func (g *Graph) fail(err error) {
	if g.err == nil {
		g.err = err
	}
}

// Err returns the first construction error, if any.
func (g *Graph) Err() error { return g.err }

// Len is the number of stages.
func (g *Graph) Len() int { return len(g.stages) }

// Stages renders every stage separately, in insertion order.
func (g *Graph) Stages() []string {
	out := make([]string, len(g.stages))
	for i, st := range g.stages {
		out[i] = st.String()
	}
	return out
}

// String renders the graph for -filter_complex.
func (g *Graph) String() string {
	return strings.Join(g.Stages(), ";")
}

// EscapePath escapes a filesystem path for use as a filter option value.
func EscapePath(path string) string {
	escaped := strings.ReplaceAll(path, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, ":", `\:`)
	escaped = strings.ReplaceAll(escaped, "'", `\'`)
	return escaped
}
