package workflow

// Table declares the legal transitions for one entity kind. Edges are
// declared at construction; guards may be attached per edge by the
// owning service once its repositories exist.
type Table struct {
	kind    Kind
	initial Status
	edges   map[edgeKey][]Guard
}

type edgeKey struct {
	from Status
	to   Status
}

func NewTable(kind Kind, initial Status) *Table {
	return &Table{
		kind:    kind,
		initial: initial,
		edges:   make(map[edgeKey][]Guard),
	}
}

func (t *Table) Kind() Kind      { return t.kind }
func (t *Table) Initial() Status { return t.initial }

// Edge declares a legal transition.
func (t *Table) Edge(from, to Status, guards ...Guard) *Table {
	key := edgeKey{from: from, to: to}
	t.edges[key] = append(t.edges[key], guards...)
	return t
}

// Guard attaches guards to an already declared edge. Attaching to an
// undeclared edge panics: that is a wiring bug, not a runtime input.
func (t *Table) Guard(from, to Status, guards ...Guard) *Table {
	key := edgeKey{from: from, to: to}
	if _, ok := t.edges[key]; !ok {
		panic("workflow: guard attached to undeclared edge " + string(from) + " -> " + string(to))
	}
	t.edges[key] = append(t.edges[key], guards...)
	return t
}

// Allowed reports whether (from, to) is a declared edge.
func (t *Table) Allowed(from, to Status) bool {
	_, ok := t.edges[edgeKey{from: from, to: to}]
	return ok
}

// Guards returns the guard chain for an edge.
func (t *Table) Guards(from, to Status) []Guard {
	return t.edges[edgeKey{from: from, to: to}]
}

// Terminal reports whether no declared edge leaves the status.
func (t *Table) Terminal(s Status) bool {
	for key := range t.edges {
		if key.from == s {
			return false
		}
	}
	return true
}
