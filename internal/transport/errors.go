package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrTransport marks network, HTTP and server failures.
	ErrTransport = errors.New("transport: request failed")
	// ErrNotFound is returned when the requested entity does not exist.
	ErrNotFound = errors.New("transport: not found")
)

// RequestError describes a non-successful HTTP response.
type RequestError struct {
	StatusCode int
	Name       string
	Message    string
}

func (e *RequestError) Error() string {
	if e == nil {
		return ""
	}
	message := strings.TrimSpace(e.Message)
	switch {
	case e.Name != "" && message != "":
		return fmt.Sprintf("http %d: %s: %s", e.StatusCode, e.Name, message)
	case message != "":
		return fmt.Sprintf("http %d: %s", e.StatusCode, message)
	}
	return fmt.Sprintf("http %d", e.StatusCode)
}

// Is lets callers match request errors against ErrNotFound and ErrTransport.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrTransport:
		return true
	}
	return false
}
