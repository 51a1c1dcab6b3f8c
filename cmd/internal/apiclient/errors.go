package apiclient

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNoAccessToken is returned when the refresh endpoint answers 2xx without a token.
// It settles the queue as a refresh failure.
var ErrNoAccessToken = errors.New("apiclient: refresh response carried no access token")

// ResponseError is returned for every non-2xx response. Network failures are
// returned unwrapped.
type ResponseError struct {
	Method   string
	Path     string
	Response *Response
}

func (e *ResponseError) Error() string {
	if e == nil || e.Response == nil {
		return "apiclient: response error"
	}
	return fmt.Sprintf("apiclient: %s %s: status %d", e.Method, e.Path, e.Response.StatusCode)
}

// StatusCode extracts the HTTP status from err when it is a *ResponseError.
func StatusCode(err error) (int, bool) {
	var re *ResponseError
	if errors.As(err, &re) && re.Response != nil {
		return re.Response.StatusCode, true
	}
	return 0, false
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	code, ok := StatusCode(err)
	return ok && code == http.StatusUnauthorized
}
