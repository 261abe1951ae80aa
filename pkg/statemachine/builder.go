package statemachine

// Builder chains transition declarations:
//
//	b.From(a).When(e).To(c).WithGuard(g).WithAction(x).Add()
//
// Registration errors are sticky; Build reports the first one.
type Builder struct {
	m       *Machine
	pending Transition
	err     error
}

func NewBuilder() *Builder {
	return &Builder{m: New()}
}

// From starts a new declaration, discarding anything not yet added.
func (b *Builder) From(state State) *Builder {
	b.pending = Transition{From: state}
	return b
}

func (b *Builder) When(event Event) *Builder {
	b.pending.Event = event
	return b
}

func (b *Builder) To(state State) *Builder {
	b.pending.To = state
	return b
}

func (b *Builder) WithGuard(g Guard) *Builder {
	b.pending.Guards = append(b.pending.Guards, g)
	return b
}

func (b *Builder) WithAction(a Action) *Builder {
	b.pending.Actions = append(b.pending.Actions, a)
	return b
}

func (b *Builder) Add() *Builder {
	t := b.pending
	b.pending = Transition{}
	if b.err == nil {
		b.err = b.m.AddTransition(t.From, t.To, t.Event, t.Guards, t.Actions)
	}
	return b
}

func (b *Builder) Build() (*Machine, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.m, nil
}
