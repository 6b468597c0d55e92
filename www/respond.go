package www

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"robofleet/apperr"
)

type okBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Error   apperr.Kind       `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (h *Handlers) ok(w http.ResponseWriter, code int, msg string, data any) {
	writeJSON(w, code, okBody{Success: true, Message: msg, Data: data})
}

// fail maps err to its status. Unclassified errors are treated as internal
// and only logged in detail.
func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		ae = apperr.Internal(err)
	}
	code := apperr.HTTPStatus(ae.Kind)
	if ae.Kind == apperr.KindInternal {
		h.log.Error("www: internal error", zap.String("method", r.Method), zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())), zap.Error(err))
	}
	writeJSON(w, code, errorBody{
		Success: false,
		Message: ae.Message,
		Status:  code,
		Error:   ae.Kind,
		Fields:  ae.Fields,
	})
}

func (h *Handlers) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil && rec != http.ErrAbortHandler {
				h.log.Error("www: handler panicked", zap.String("path", r.URL.Path), zap.Any("panic", rec))
				h.fail(w, r, apperr.Internal(errors.New("panic")))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("JSON parse error - "+err.Error(), nil)
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.NotFound("Not found.")
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperr.NotFound("Invalid page.")
	}
	return n, nil
}

// pageLink returns the absolute URL of the current request with page
// replaced, or nil when the page does not exist.
func pageLink(r *http.Request, page int, exists bool) *string {
	if !exists {
		return nil
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	q := r.URL.Query()
	if page == 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}
	u := url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: q.Encode()}
	s := u.String()
	return &s
}
