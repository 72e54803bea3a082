package device

import "errors"

var (
	// ErrBadURL is returned when the device base URL cannot form a request URL.
	ErrBadURL = errors.New("bad device url")

	// ErrTimeout is returned when the device does not answer within the request timeout.
	ErrTimeout = errors.New("device request timed out")

	// ErrUnreachable is returned when the device cannot be reached at all.
	ErrUnreachable = errors.New("device unreachable")

	// ErrBadStatusCode is returned when the device answers outside 200-299.
	ErrBadStatusCode = errors.New("bad status code from device")

	// ErrUndecodableBody is returned when the response body is not valid text.
	ErrUndecodableBody = errors.New("undecodable response body")

	// ErrParseFailure is returned when the device answered with text, but
	// no value could be extracted from it. The device is reachable.
	ErrParseFailure = errors.New("failed to parse device response")
)

var networkErrors = []error{
	ErrBadURL,
	ErrTimeout,
	ErrUnreachable,
	ErrBadStatusCode,
	ErrUndecodableBody,
}

// IsNetworkError reports whether err means the device should be considered
// disconnected.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	for _, e := range networkErrors {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}

// IsParseFailure reports whether err means the device is reachable but its
// answer could not be understood.
func IsParseFailure(err error) bool {
	return errors.Is(err, ErrParseFailure)
}
