package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/target/storefront-admin/internal/errors"
)

// DecodeJSON decodes JSON from the request body into the destination and handles errors.
// Returns true if successful, false if there was an error (error response already written).
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		WriteError(w, ErrorParams{Code: http.StatusBadRequest, ErrCode: "invalid_json", Err: err})
		return false
	}

	return true
}

const maxJSONBody = 64 << 10

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// ErrorParams groups parameters for WriteError to adhere to the ≤3 params guideline.
type ErrorParams struct {
	Code    int
	ErrCode string
	Err     error
}

// WriteError writes a JSON error response using ErrorParams.
func WriteError(w http.ResponseWriter, p ErrorParams) {
	WriteJSON(w, p.Code, errorBody{Error: p.ErrCode, Message: p.Err.Error()})
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// StatusForError maps an error kind to the HTTP status used by every surface.
func StatusForError(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case apperrors.ErrCodeProviderUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeAlreadyExists:
		return http.StatusConflict
	case apperrors.ErrCodeBootstrapClosed:
		return http.StatusForbidden
	case apperrors.ErrCodeWeakSecret, apperrors.ErrCodeInvalidIdentifier:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeActionError reports a failed session action. message is the display text the
// session store recorded, so the JSON surface never derives its own wording.
func writeActionError(w http.ResponseWriter, err error, message string) {
	code := apperrors.GetCode(err)
	if code == "" {
		code = apperrors.ErrCodeUnknown
	}
	if message == "" {
		message = apperrors.DisplayMessage(code)
	}
	WriteJSON(w, StatusForError(err), errorBody{Error: string(code), Message: message})
}
