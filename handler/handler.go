package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"hot-mess-coach/internal/config"
	"hot-mess-coach/internal/metrics"
	"hot-mess-coach/internal/middleware"
	"hot-mess-coach/internal/usecase"
)

// MaxRequestBodyBytes caps the chat request body.
const MaxRequestBodyBytes = 1 << 20

const (
	serviceMessage      = "Hot Mess Coach API is running"
	apiKeyMissingDetail = "OPENAI_API_KEY not configured"
	upstreamErrorPrefix = "Error calling OpenAI API: "
	internalErrorDetail = "Internal Server Error"
)

type ChatUseCase interface {
	Reply(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	APIKeyConfigured() bool
}

// Options configures the ambient behaviour around the routes.
type Options struct {
	CORS config.CORS
	// Metrics enables GET /metrics and request instrumentation when non-nil.
	Metrics *metrics.Collector
}

type Handler struct {
	uc     ChatUseCase
	router http.Handler
}

type chatRequest struct {
	Message *string `json:"message"`
}

type chatResponse struct {
	Reply string `json:"reply"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status           string `json:"status"`
	APIKeyConfigured bool   `json:"api_key_configured"`
}

type usageExample struct {
	Method string            `json:"method"`
	URL    string            `json:"url"`
	Body   map[string]string `json:"body"`
}

type usageResponse struct {
	Error   string       `json:"error"`
	Example usageExample `json:"example"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// validationIssue mirrors the shape FastAPI clients already parse for 422s.
type validationIssue struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

type validationResponse struct {
	Detail []validationIssue `json:"detail"`
}

func NewHandler(uc ChatUseCase, opts Options) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: chat usecase must not be nil")
	}
	h := &Handler{uc: uc}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.root)
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/chat", h.chatUsage)
	mux.HandleFunc("POST /api/chat", h.chat)
	for _, path := range []string{"/{$}", "/health", "/api/chat"} {
		mux.HandleFunc(path, methodNotAllowed)
	}
	mux.HandleFunc("/", notFound)

	var obs middleware.HTTPObserver
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics.Handler())
		obs = opts.Metrics
	}

	h.router = middleware.Chain(mux,
		middleware.Recovery,
		middleware.RequestID,
		middleware.AccessLog(obs),
		middleware.CORS(opts.CORS),
	)
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok", Message: serviceMessage})
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", APIKeyConfigured: h.uc.APIKeyConfigured()})
}

func (h *Handler) chatUsage(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, usageResponse{
		Error: "This endpoint requires a POST request",
		Example: usageExample{
			Method: http.MethodPost,
			URL:    "/api/chat",
			Body:   map[string]string{"message": "hi"},
		},
	})
}

func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)

	var req chatRequest
	if issue, ok := decodeChatRequest(r.Body, &req); !ok {
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Detail: []validationIssue{issue}})
		return
	}

	out, err := h.uc.Reply(r.Context(), usecase.ChatInput{Message: *req.Message})
	if err != nil {
		h.writeUseCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{Reply: out.Reply})
}

func decodeChatRequest(body io.Reader, req *chatRequest) (validationIssue, bool) {
	dec := json.NewDecoder(body)
	err := dec.Decode(req)
	var (
		typeErr *json.UnmarshalTypeError
		sizeErr *http.MaxBytesError
	)
	if err == nil {
		// The body must hold exactly one JSON value.
		if extra := dec.Decode(&struct{}{}); extra != io.EOF {
			if errors.As(extra, &sizeErr) {
				err = extra
			} else {
				return validationIssue{Loc: []string{"body"}, Msg: "unexpected data after JSON body", Type: "value_error.jsondecode"}, false
			}
		}
	}
	switch {
	case err == nil && req.Message == nil:
		return validationIssue{Loc: []string{"body", "message"}, Msg: "field required", Type: "value_error.missing"}, false
	case err == nil:
		return validationIssue{}, true
	case errors.As(err, &sizeErr):
		return validationIssue{Loc: []string{"body"}, Msg: "request body too large", Type: "value_error.body_too_large"}, false
	case errors.As(err, &typeErr) && typeErr.Field == "message":
		return validationIssue{Loc: []string{"body", "message"}, Msg: "str type expected", Type: "type_error.str"}, false
	case errors.As(err, &typeErr):
		return validationIssue{Loc: []string{"body"}, Msg: "value is not a valid dict", Type: "type_error.dict"}, false
	case errors.Is(err, io.EOF):
		return validationIssue{Loc: []string{"body"}, Msg: "field required", Type: "value_error.missing"}, false
	default:
		return validationIssue{Loc: []string{"body"}, Msg: "invalid JSON body", Type: "value_error.jsondecode"}, false
	}
}

func (h *Handler) writeUseCaseError(w http.ResponseWriter, r *http.Request, err error) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		slog.ErrorContext(r.Context(), "unexpected chat error", "err", err, "request_id", middleware.GetRequestID(r.Context()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: internalErrorDetail})
		return
	}

	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		writeJSON(w, http.StatusUnprocessableEntity, validationResponse{Detail: []validationIssue{{
			Loc:  []string{"body", "message"},
			Msg:  "message must not be empty",
			Type: "value_error.empty",
		}}})
	case usecase.ErrorConfiguration:
		slog.ErrorContext(r.Context(), "chat rejected", "reason", ucErr.Reason, "request_id", middleware.GetRequestID(r.Context()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: apiKeyMissingDetail})
	case usecase.ErrorUpstream:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: upstreamErrorPrefix + ucErr.Cause()})
	default:
		slog.ErrorContext(r.Context(), "chat failed", "err", err, "request_id", middleware.GetRequestID(r.Context()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: internalErrorDetail})
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	allow := []string{http.MethodGet, http.MethodHead}
	if strings.HasPrefix(r.URL.Path, "/api/chat") {
		allow = append(allow, http.MethodPost)
	}
	w.Header().Set("Allow", strings.Join(allow, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Detail: "Method Not Allowed"})
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Detail: "Not Found"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "err", err)
	}
}
