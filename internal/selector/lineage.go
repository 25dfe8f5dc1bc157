package selector

// Node is one level of an element's ancestry as reported by the page script.
type Node struct {
	Tag   string `json:"tag"`
	ID    string `json:"id,omitempty"`
	Index int    `json:"index"`
}

// Lineage lists an element and its ancestors, innermost first.
type Lineage []Node

// Element returns the innermost node as an Element, or nil when empty.
func (l Lineage) Element() Element {
	if len(l) == 0 {
		return nil
	}
	return lineageElement{nodes: l, pos: 0}
}

// Selector is shorthand for Synthesize(l.Element()).
func (l Lineage) Selector() string {
	el := l.Element()
	if el == nil {
		return ""
	}
	return Synthesize(el)
}

// Tag of the innermost node.
func (l Lineage) Tag() string {
	if len(l) == 0 {
		return ""
	}
	return l[0].Tag
}

type lineageElement struct {
	nodes Lineage
	pos   int
}

func (e lineageElement) Tag() string       { return e.nodes[e.pos].Tag }
func (e lineageElement) ID() string        { return e.nodes[e.pos].ID }
func (e lineageElement) SameTagIndex() int { return e.nodes[e.pos].Index }

func (e lineageElement) Parent() Element {
	if e.pos+1 >= len(e.nodes) {
		return nil
	}
	return lineageElement{nodes: e.nodes, pos: e.pos + 1}
}
