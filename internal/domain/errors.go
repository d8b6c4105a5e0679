package domain

// ErrorKind classifies a failure observed anywhere in the fleet —
// from a probe, from the in-page driver, or from order submission —
// into one of a small, stable set of causes. Keeping this taxonomy
// pluggable (see Classifier in internal/driver) lets UI-locale-specific
// text matching live outside the core model.
type ErrorKind string

const (
	ErrInsufficientFunds ErrorKind = "INSUFFICIENT_FUNDS"
	ErrMarketClosed      ErrorKind = "MARKET_CLOSED"
	ErrConnectionTimeout ErrorKind = "CONNECTION_TIMEOUT"
	ErrOrderRejection    ErrorKind = "ORDER_REJECTION"
	ErrDOMElementMissing ErrorKind = "DOM_ELEMENT_MISSING"
	ErrValidationTimeout ErrorKind = "VALIDATION_TIMEOUT"
	ErrUnknown           ErrorKind = "UNKNOWN"
)

// FailureClass is the connection-health classification, distinct from
// ErrorKind: ErrorKind describes why one order attempt failed, while
// FailureClass describes why a session's connection is unhealthy.
type FailureClass string

const (
	FailureNetworkDisconnection  FailureClass = "NETWORK_DISCONNECTION"
	FailureSlowResponse          FailureClass = "SLOW_RESPONSE"
	FailureAuthenticationExpired FailureClass = "AUTHENTICATION_EXPIRED"
	FailureDOMUnresponsive       FailureClass = "DOM_UNRESPONSIVE"
	FailureRuntimeFailure        FailureClass = "RUNTIME_FAILURE"
	FailureDriverMissing         FailureClass = "DRIVER_MISSING"
	FailureApplicationStale      FailureClass = "APPLICATION_STALE"
)
