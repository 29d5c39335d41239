// Package httputil provides the JSON response helpers shared by the
// trigger API handlers.
package httputil

import (
	"encoding/json"
	"log"
	"net/http"
)

// errorEnvelope is the error body for every non-2xx response.
type errorEnvelope struct {
	Error string `json:"error"`
}

// JSON writes data as a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[httputil] encode response: %v", err)
	}
}

// OK writes a 200 response with the given data.
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// BadRequest writes a 400 error.
func BadRequest(w http.ResponseWriter, message string) {
	JSON(w, http.StatusBadRequest, errorEnvelope{Error: message})
}

// NotFound writes a 404 error.
func NotFound(w http.ResponseWriter, message string) {
	JSON(w, http.StatusNotFound, errorEnvelope{Error: message})
}

// InternalError writes a 500 error. The real error is logged but never
// sent to the client.
func InternalError(w http.ResponseWriter, err error) {
	log.Printf("[httputil] internal error: %v", err)
	JSON(w, http.StatusInternalServerError, errorEnvelope{Error: "internal server error"})
}
