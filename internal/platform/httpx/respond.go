// Package httpx provides HTTP response utilities for the JSON API envelope.
package httpx

import (
	"encoding/json"
	"net/http"
)

// Envelope is the body of every API response.
type Envelope struct {
	Success    bool     `json:"success"`
	Message    string   `json:"message"`
	Data       any      `json:"data,omitempty"`
	Errors     []string `json:"errors,omitempty"`
	Pagination any      `json:"pagination,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// OK sends a success envelope.
func OK(w http.ResponseWriter, status int, message string, data any) {
	JSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

// Page sends a success envelope with pagination metadata.
func Page(w http.ResponseWriter, message string, data any, pagination any) {
	JSON(w, http.StatusOK, Envelope{Success: true, Message: message, Data: data, Pagination: pagination})
}

// Fail sends an error envelope carrying the given codes.
func Fail(w http.ResponseWriter, status int, message string, codes ...string) {
	if len(codes) == 0 {
		codes = []string{http.StatusText(status)}
	}
	JSON(w, status, Envelope{Success: false, Message: message, Errors: codes})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(target)
}
