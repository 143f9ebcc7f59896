package keyrunes

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Client operations and Guard checks. Wrapped
// errors always unwrap to exactly one of these, so callers branch with
// errors.Is regardless of whether the failure carries an [*APIError].
var (
	// ErrValidation covers malformed input, both client-side (request
	// validation before any I/O) and server-side (HTTP 400/422).
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned when a registration collides with an
	// existing username or email (HTTP 409).
	ErrConflict = errors.New("resource already exists")
	// ErrAuthentication is returned when the service rejects credentials
	// or the bearer token (HTTP 401).
	ErrAuthentication = errors.New("authentication failed")
	// ErrUnauthenticated is returned locally when an operation needs an
	// active session and the client holds no token. No request is made.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrAuthorization is returned when an authenticated principal lacks
	// a required group or privilege (HTTP 403, guard denials).
	ErrAuthorization = errors.New("authorization denied")
	// ErrPermission is returned when the admin registration key is
	// rejected (HTTP 403 on the admin endpoint).
	ErrPermission = errors.New("permission denied")
	// ErrServiceUnavailable covers transport failures and HTTP 502/503/504.
	ErrServiceUnavailable = errors.New("service unavailable")

	ErrUserNotFound  = errors.New("user not found")
	ErrGroupNotFound = errors.New("group not found")

	// ErrNoClient is returned by guards constructed without a client when
	// no default client has been installed via SetDefault or Configure.
	ErrNoClient = errors.New("keyrunes client not provided")
	// ErrMissingUserID is returned by guard checks invoked with an empty
	// user ID.
	ErrMissingUserID = errors.New("user id not found")
)

// APIError is the detailed form of a failure reported by the Keyrunes
// service. It wraps the sentinel matching its HTTP status, so
// errors.Is(err, ErrConflict) and errors.As(err, &apiErr) both work.
type APIError struct {
	// Status is the HTTP status code of the response.
	Status int
	// Code is the machine-readable error code from the response body,
	// empty when the service returned none.
	Code string
	// Message is the human-readable error description from the response
	// body, falling back to the HTTP status text.
	Message string
	// RequestID echoes the X-Request-ID header sent with the request.
	RequestID string
	// Endpoint is the method and path of the failed call.
	Endpoint string

	sentinel error
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("keyrunes: %s %s: %s (status %d, code %s)", methodOf(e.Endpoint), pathOf(e.Endpoint), e.Message, e.Status, e.Code)
	}
	return fmt.Sprintf("keyrunes: %s %s: %s (status %d)", methodOf(e.Endpoint), pathOf(e.Endpoint), e.Message, e.Status)
}

func (e *APIError) Unwrap() error {
	if e.sentinel == nil {
		return nil
	}
	return e.sentinel
}

func methodOf(endpoint string) string {
	for i := 0; i < len(endpoint); i++ {
		if endpoint[i] == ' ' {
			return endpoint[:i]
		}
	}
	return endpoint
}

func pathOf(endpoint string) string {
	for i := 0; i < len(endpoint); i++ {
		if endpoint[i] == ' ' {
			return endpoint[i+1:]
		}
	}
	return ""
}

// notFoundKind selects which sentinel a 404 maps to for a given endpoint.
type notFoundKind uint8

const (
	notFoundNone notFoundKind = iota
	notFoundUser
	notFoundGroup
)

// statusSentinel maps an HTTP status to the sentinel it unwraps to.
// adminEndpoint distinguishes 403 on admin registration (key rejected,
// ErrPermission) from 403 elsewhere (ErrAuthorization).
func statusSentinel(status int, nf notFoundKind, adminEndpoint bool) error {
	switch status {
	case 400, 422:
		return ErrValidation
	case 401:
		return ErrAuthentication
	case 403:
		if adminEndpoint {
			return ErrPermission
		}
		return ErrAuthorization
	case 404:
		switch nf {
		case notFoundUser:
			return ErrUserNotFound
		case notFoundGroup:
			return ErrGroupNotFound
		}
		return nil
	case 409:
		return ErrConflict
	case 502, 503, 504:
		return ErrServiceUnavailable
	}
	return nil
}
