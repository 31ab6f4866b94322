package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/cwoolley/playbook/internal/domain"
	"github.com/cwoolley/playbook/internal/logger"
)

type errorBody struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

// errorHandler writes a response for err and reports whether it did.
type errorHandler func(w http.ResponseWriter, err error) bool

// sentinelHandler answers errors wrapping sentinel. An empty msg uses the
// error's own text.
func sentinelHandler(sentinel error, status int, msg, hint string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		text := msg
		if text == "" {
			text = err.Error()
		}
		writeJSON(w, status, errorBody{Error: text, Hint: hint})
		return true
	}
}

// errorHandlers is checked in order; the more specific sentinels come
// before the ones they wrap.
var errorHandlers = []errorHandler{
	sentinelHandler(domain.ErrNoToken, http.StatusUnauthorized, "No access token provided", "sign in again"),
	sentinelHandler(domain.ErrAuthExpired, http.StatusUnauthorized, "Access token expired", "sign in again"),
	sentinelHandler(domain.ErrForbidden, http.StatusForbidden, "", "use an authorized email address"),
	sentinelHandler(domain.ErrNotFound, http.StatusNotFound, "", "check the job id; finished jobs expire"),
	sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, "", "check the search terms"),
	sentinelHandler(domain.ErrFileTooLarge, http.StatusBadRequest, "", "files must be under 10MB"),
	sentinelHandler(domain.ErrNoSpreadsheets, http.StatusBadRequest, "", "check that the files are .xlsx workbooks"),
	sentinelHandler(domain.ErrValidation, http.StatusBadRequest, "", "check the request fields"),
	sentinelHandler(domain.ErrTransient, http.StatusBadGateway, "", "try fewer terms or a narrower folder"),
	sentinelHandler(domain.ErrProvider, http.StatusBadGateway, "", "check folder permissions"),
	sentinelHandler(domain.ErrExtraction, http.StatusUnprocessableEntity, "", "the file may be damaged or password protected"),
}

func handleError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())
	for _, h := range errorHandlers {
		if h(w, err) {
			log.Warn("request failed", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a JSON body of at most limit bytes into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return domain.ErrFileTooLarge
		}
		return domain.NewValidation("body", "must be valid JSON: "+err.Error())
	}
	return nil
}
