package domain

// DeliveryStatus is the externally observable delivery state of a request.
type DeliveryStatus string

const (
	StatusDelivered DeliveryStatus = "delivered"
	StatusRetrying  DeliveryStatus = "retrying"
	StatusFailed    DeliveryStatus = "failed"
)

func (s DeliveryStatus) String() string { return string(s) }

// IsTerminal reports whether no further delivery attempt follows this status.
func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusFailed
}
