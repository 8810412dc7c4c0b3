package domain

type OrderStatus string

const (
	OrderPending        OrderStatus = "pending"
	OrderAccepted       OrderStatus = "accepted"
	OrderPreparing      OrderStatus = "preparing"
	OrderOutForDelivery OrderStatus = "out_for_delivery"
	OrderDelivered      OrderStatus = "delivered"
	OrderCancelled      OrderStatus = "cancelled"
)

// orderStatuses is the closed set of statuses, in lifecycle order.
var orderStatuses = []OrderStatus{
	OrderPending,
	OrderAccepted,
	OrderPreparing,
	OrderOutForDelivery,
	OrderDelivered,
	OrderCancelled,
}

// orderTransitions is the only place legal edges are defined. Terminal
// statuses have no entry.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderAccepted, OrderCancelled},
	OrderAccepted:       {OrderPreparing, OrderCancelled},
	OrderPreparing:      {OrderOutForDelivery, OrderCancelled},
	OrderOutForDelivery: {OrderDelivered},
}

var orderTransitionSet = buildTransitionSet(orderTransitions)

func buildTransitionSet(transitions map[OrderStatus][]OrderStatus) map[OrderStatus]map[OrderStatus]struct{} {
	set := make(map[OrderStatus]map[OrderStatus]struct{}, len(transitions))
	for from, tos := range transitions {
		next := make(map[OrderStatus]struct{}, len(tos))
		for _, to := range tos {
			next[to] = struct{}{}
		}
		set[from] = next
	}
	return set
}

// OrderStatuses returns every known status.
func OrderStatuses() []OrderStatus {
	out := make([]OrderStatus, len(orderStatuses))
	copy(out, orderStatuses)
	return out
}

// ParseOrderStatus maps a wire value onto the closed enumeration.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	for _, st := range orderStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s OrderStatus) Valid() bool {
	_, ok := ParseOrderStatus(string(s))
	return ok
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

// CanTransition reports whether from -> to is an edge of the transition table.
func CanTransition(from, to OrderStatus) bool {
	next, ok := orderTransitionSet[from]
	if !ok {
		return false
	}
	_, ok = next[to]
	return ok
}

// NextStatuses lists the legal targets from s, in table order.
func NextStatuses(s OrderStatus) []OrderStatus {
	tos := orderTransitions[s]
	out := make([]OrderStatus, len(tos))
	copy(out, tos)
	return out
}
