package bluesky

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is a non-2xx XRPC response.
type APIError struct {
	NSID   string
	Status int

	// Type and Message are the XRPC error fields, when the body carried them.
	Type    string
	Message string

	Body string
}

func newAPIError(nsid string, status int, body []byte) *APIError {
	e := &APIError{
		NSID:   nsid,
		Status: status,
		Body:   strings.TrimSpace(string(body)),
	}
	var xe struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &xe) == nil {
		e.Type = xe.Error
		e.Message = xe.Message
	}
	return e
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error (status %d): %s", e.NSID, e.Status, e.Body)
}

// ExpiredToken reports whether the service rejected the access token as
// expired.
func (e *APIError) ExpiredToken() bool {
	return e.Type == "ExpiredToken"
}
