package collab

import (
	"github.com/stargety/oasis-mapeditor/internal/document"
	"github.com/stargety/oasis-mapeditor/internal/shape"
)

// Rollback undoes a rejected operation locally. For shape operations a nil
// Restore means the shape did not exist before and must be removed. For
// map operations Map holds the previous map info.
type Rollback struct {
	ShapeID string
	Restore *shape.Shape
	Map     *document.MapInfo
}

type pendingOp struct {
	op     Operation
	before *shape.Shape
	info   *document.MapInfo
}

// Pending tracks operations applied optimistically and not yet confirmed,
// each with the pre-image needed to undo it.
type Pending struct {
	ops   map[string]*pendingOp
	order []string
}

func NewPending() *Pending {
	return &Pending{ops: make(map[string]*pendingOp)}
}

// Track records a shape operation with the shape as it was before. before
// is nil when the operation created the shape.
func (p *Pending) Track(op Operation, before *shape.Shape) {
	var b *shape.Shape
	if before != nil {
		cp := before.Clone()
		b = &cp
	}
	p.add(&pendingOp{op: op, before: b})
}

// TrackMap records a map operation with the map info it replaced.
func (p *Pending) TrackMap(op Operation, before document.MapInfo) {
	p.add(&pendingOp{op: op, info: &before})
}

func (p *Pending) add(e *pendingOp) {
	if e.op.ID == "" {
		return
	}
	if _, dup := p.ops[e.op.ID]; !dup {
		p.order = append(p.order, e.op.ID)
	}
	p.ops[e.op.ID] = e
}

// Ack confirms an operation.
func (p *Pending) Ack(opID string) bool {
	if _, ok := p.ops[opID]; !ok {
		return false
	}
	p.remove(opID)
	return true
}

// Nack drops a rejected operation. When a later pending operation touches
// the same target it inherits the pre-image and nothing is rolled back yet,
// because the server applies that later operation on top. Otherwise the
// returned rollback must be applied.
func (p *Pending) Nack(opID string) (Rollback, bool) {
	e, ok := p.ops[opID]
	if !ok {
		return Rollback{}, false
	}
	p.remove(opID)

	target := e.op.TargetID()
	if next := p.first(target); next != nil {
		next.before, next.info = e.before, e.info
		return Rollback{}, false
	}
	if isMapOp(e.op) {
		return Rollback{Map: e.info}, true
	}
	return Rollback{ShapeID: target, Restore: e.before}, true
}

// Rebase forgets every pending operation, as after a full document sync.
// It returns how many were dropped.
func (p *Pending) Rebase() int {
	n := len(p.order)
	p.ops = make(map[string]*pendingOp)
	p.order = nil
	return n
}

// Supersede reports whether a pending operation targets id. If so, the
// remote change is folded into that operation's pre-image through fn
// instead of being applied, since the local operation lands after it on
// the server.
func (p *Pending) Supersede(id string, fn func(before *shape.Shape) *shape.Shape) bool {
	e := p.first(id)
	if e == nil {
		return false
	}
	e.before = fn(e.before)
	return true
}

// SupersedeMap folds a remote map change into the pre-image of the
// oldest pending map operation.
func (p *Pending) SupersedeMap(fn func(before document.MapInfo) document.MapInfo) bool {
	for _, id := range p.order {
		if e := p.ops[id]; isMapOp(e.op) {
			info := fn(*e.info)
			e.info = &info
			return true
		}
	}
	return false
}

// MapOps returns the pending map operations oldest first.
func (p *Pending) MapOps() []Operation {
	var ops []Operation
	for _, id := range p.order {
		if e := p.ops[id]; isMapOp(e.op) {
			ops = append(ops, e.op)
		}
	}
	return ops
}

func (p *Pending) Len() int {
	return len(p.order)
}

// IDs returns pending operation IDs oldest first.
func (p *Pending) IDs() []string {
	return append([]string(nil), p.order...)
}

func (p *Pending) first(target string) *pendingOp {
	for _, id := range p.order {
		e := p.ops[id]
		if !isMapOp(e.op) && e.op.TargetID() == target && target != "" {
			return e
		}
		if target == "" && isMapOp(e.op) {
			return e
		}
	}
	return nil
}

func (p *Pending) remove(opID string) {
	delete(p.ops, opID)
	for i, id := range p.order {
		if id == opID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

func isMapOp(op Operation) bool {
	return op.Type == OpMapRename || op.Type == OpMapUpdate
}
