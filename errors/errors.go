package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// Error kinds returned by the credential, token and session layers
var (
	// Credential errors
	ErrMalformedCredentials = errors.New("malformed credentials")
	ErrKeyFetchFailed       = errors.New("public key fetch failed")

	// Transport errors
	ErrNetwork = errors.New("network error")

	// Token verification errors
	ErrMalformed        = errors.New("malformed token")
	ErrUnknownKeyID     = errors.New("unknown key id")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrExpired          = errors.New("token expired")

	// Session errors
	ErrInvalidToken          = errors.New("invalid token")
	ErrTokenExpiredNoRefresh = errors.New("token expired and no refresh token available")
	ErrNoParameters          = errors.New("no usable session parameter given")

	// Document errors
	ErrDeserialize = errors.New("document deserialization failed")
)

// APIError is a request rejected by a Google endpoint. Code is the HTTP
// status (or the code from the error envelope), Message the server message
// and Context identifies the call site, usually a document path or user id.
type APIError struct {
	Code    int
	Message string
	Context string
	err     *googleapi.Error
}

func (e *APIError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("api error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("api error %d: %s (%s)", e.Code, e.Message, e.Context)
}

func (e *APIError) Unwrap() error {
	if e.err == nil {
		return nil
	}
	return e.err
}

// CheckResponse returns nil for 2xx responses. Any other status is turned into
// an *APIError carrying the envelope message and the given context. The body
// of a failed response is consumed.
func CheckResponse(res *http.Response, context string) error {
	err := googleapi.CheckResponse(res)
	if err == nil {
		return nil
	}

	apiErr := &APIError{Code: res.StatusCode, Context: context}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		apiErr.err = gerr
		if gerr.Code != 0 {
			apiErr.Code = gerr.Code
		}
		apiErr.Message = gerr.Message
		if apiErr.Message == "" {
			apiErr.Message = gerr.Body
		}
	} else {
		apiErr.Message = err.Error()
	}
	return apiErr
}

// Network wraps a transport level failure so it matches ErrNetwork
func Network(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrNetwork, context, err)
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
