package shape

// List is the editor's flat shape list. Order is painter's order: later
// shapes are drawn on top and win hit tests.
type List struct {
	shapes []Shape
	index  map[string]int
}

// NewList builds a list from shapes, dropping later duplicates of an ID.
func NewList(shapes []Shape) *List {
	l := &List{index: make(map[string]int, len(shapes))}
	for _, s := range shapes {
		l.Add(s)
	}
	return l
}

func (l *List) Len() int {
	return len(l.shapes)
}

// Get returns a copy of the shape with id.
func (l *List) Get(id string) (Shape, bool) {
	i, ok := l.index[id]
	if !ok {
		return Shape{}, false
	}
	return l.shapes[i].Clone(), true
}

func (l *List) Has(id string) bool {
	_, ok := l.index[id]
	return ok
}

// Add appends s on top. It refuses empty and duplicate IDs.
func (l *List) Add(s Shape) bool {
	if s.ID == "" || l.Has(s.ID) {
		return false
	}
	l.index[s.ID] = len(l.shapes)
	l.shapes = append(l.shapes, s.Clone())
	return true
}

// Upsert replaces the shape with the same ID in place, or appends it.
func (l *List) Upsert(s Shape) {
	if i, ok := l.index[s.ID]; ok {
		l.shapes[i] = s.Clone()
		return
	}
	l.Add(s)
}

// Update applies fn to the stored shape. Returns false when id is unknown.
func (l *List) Update(id string, fn func(*Shape)) bool {
	i, ok := l.index[id]
	if !ok {
		return false
	}
	fn(&l.shapes[i])
	return true
}

// Remove deletes id and returns the removed shape.
func (l *List) Remove(id string) (Shape, bool) {
	i, ok := l.index[id]
	if !ok {
		return Shape{}, false
	}
	removed := l.shapes[i]
	l.shapes = append(l.shapes[:i], l.shapes[i+1:]...)
	delete(l.index, id)
	for j := i; j < len(l.shapes); j++ {
		l.index[l.shapes[j].ID] = j
	}
	return removed, true
}

// All returns deep copies of every shape in painter's order.
func (l *List) All() []Shape {
	out := make([]Shape, len(l.shapes))
	for i, s := range l.shapes {
		out[i] = s.Clone()
	}
	return out
}

// Each calls fn for every shape in painter's order without copying.
// fn must not mutate the shape.
func (l *List) Each(fn func(Shape)) {
	for _, s := range l.shapes {
		fn(s)
	}
}

// TopmostAt returns the ID of the front-most shape matching hit.
func (l *List) TopmostAt(hit func(Shape) bool) (string, bool) {
	for i := len(l.shapes) - 1; i >= 0; i-- {
		if hit(l.shapes[i]) {
			return l.shapes[i].ID, true
		}
	}
	return "", false
}
