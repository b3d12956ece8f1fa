package domain

// InitialStatus is the status of every newly created order.
const InitialStatus = OrderStatusPending

// Transitions maps a status to the statuses it may legally move to.
// A status with no outgoing edges is terminal.
type Transitions map[OrderStatus][]OrderStatus

// DefaultTransitions is the order lifecycle graph.
var DefaultTransitions = Transitions{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing},
	OrderStatusProcessing: {OrderStatusShipping},
	OrderStatusShipping:   {OrderStatusDelivered},
	OrderStatusDelivered:  {OrderStatusCompleted, OrderStatusRefunded},
}

type StateMachine struct {
	graph Transitions
}

func NewStateMachine(graph Transitions) *StateMachine {
	return &StateMachine{graph: graph}
}

func (m *StateMachine) IsTerminal(s OrderStatus) bool {
	return len(m.graph[s]) == 0
}

func (m *StateMachine) CanTransition(from, to OrderStatus) bool {
	for _, next := range m.graph[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next returns the legal successors of s.
func (m *StateMachine) Next(s OrderStatus) []OrderStatus {
	next := make([]OrderStatus, len(m.graph[s]))
	copy(next, m.graph[s])
	return next
}

// Cancel applies the customer-facing cancellation, which must be an edge of
// the graph.
func (m *StateMachine) Cancel(o *Order) error {
	if !m.CanTransition(o.Status, OrderStatusCancelled) {
		return &TransitionError{From: o.Status, To: OrderStatusCancelled}
	}
	o.Status = OrderStatusCancelled
	return nil
}

// Override applies an administrative status change. Any enumerated target is
// accepted as long as the order has not reached a terminal status.
func (m *StateMachine) Override(o *Order, to OrderStatus) error {
	if !to.IsValid() {
		return NewValidationError("status", "unknown order status "+string(to))
	}
	if m.IsTerminal(o.Status) {
		return &TransitionError{From: o.Status, To: to}
	}
	o.Status = to
	return nil
}
