package errutil

// CoreStatus is a transport-agnostic status code attached to every BaseError.
type CoreStatus string

const (
	StatusBadRequest         CoreStatus = "BAD_REQUEST"
	StatusNotFound           CoreStatus = "NOT_FOUND"
	StatusConflict           CoreStatus = "CONFLICT"
	StatusTooManyRequests    CoreStatus = "TOO_MANY_REQUESTS"
	StatusTimeout            CoreStatus = "TIMEOUT"
	StatusInternal           CoreStatus = "INTERNAL"
	StatusBadGateway         CoreStatus = "BAD_GATEWAY"
	StatusServiceUnavailable CoreStatus = "SERVICE_UNAVAILABLE"
	StatusUnknown            CoreStatus = "UNKNOWN"
)
