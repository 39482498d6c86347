package domain

// SessionState tracks a connected client from accept to close.
// Transitions are one-way: Unauthenticated -> Authenticated -> Closed.
type SessionState int

const (
	Unauthenticated SessionState = iota
	Authenticated
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	case Closed:
		return "closed"
	}
	return "unknown"
}
