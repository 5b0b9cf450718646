package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"clip-catalog/internal/database"
	"clip-catalog/internal/logging"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// writeJSON encodes v as JSON with the given status. Encoding errors are
// logged since the header has already gone out.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, status string) {
	writeJSON(w, http.StatusOK, map[string]string{"status": status})
}

// writeStoreError maps catalog errors onto HTTP statuses. Unexpected errors
// are logged with op and reported as 500 without detail.
func writeStoreError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		writeJSONError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, database.ErrConflict):
		writeJSONError(w, "Already exists", http.StatusConflict)
	default:
		logging.Error("%s: %v", op, err)
		writeJSONError(w, "Failed to "+op, http.StatusInternalServerError)
	}
}

// decodeJSON reads a bounded JSON body into v. It writes the 400 itself
// and reports whether the handler should continue.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			writeJSONError(w, "Request body is required", http.StatusBadRequest)
		} else {
			writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		}
		return false
	}
	return true
}

// intParam parses a positive integer query parameter, falling back to def.
func intParam(r *http.Request, name string, def, maxVal int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n <= 0 {
		return def
	}
	return min(n, maxVal)
}
