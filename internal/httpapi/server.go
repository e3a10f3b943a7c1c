package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/stuvusIT/entman/internal/entman/service"
	"github.com/stuvusIT/entman/internal/entman/types"
	"github.com/stuvusIT/entman/internal/metrics"
)

type Dependencies struct {
	Logger         *zap.Logger
	Addr           string
	MountPoint     string
	AccessService  *service.AccessService
	HistoryService *service.HistoryService
	Metrics        *metrics.Metrics
	RateLimit      RateLimit
}

type Server struct {
	httpServer     *http.Server
	logger         *zap.Logger
	mux            *http.ServeMux
	accessService  *service.AccessService
	historyService *service.HistoryService
	metrics        *metrics.Metrics
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		logger:         d.Logger,
		mux:            mux,
		accessService:  d.AccessService,
		historyService: d.HistoryService,
		metrics:        d.Metrics,
	}

	access := AccessPath(d.MountPoint)
	var accessHandler http.Handler = http.HandlerFunc(s.handleAccess)
	if d.RateLimit.Enabled() {
		accessHandler = newClientLimiter(d.RateLimit).middleware(accessHandler)
	}
	mux.Handle("POST "+access, accessHandler)
	mux.HandleFunc("GET "+access, s.handleHistory)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", d.Metrics.Handler())

	handler := requestIDMiddleware(loggingMiddleware(d.Logger, d.Metrics, mux))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

// AccessPath is the route of the access endpoint below mountPoint.
// An empty mount point is the root.
func AccessPath(mountPoint string) string {
	return path.Join("/", mountPoint, "access")
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	token, ok, err := accessToken(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, "missing_token", "token is required")
		return
	}

	status, resp, err := s.accessService.Access(r.Context(), token)
	switch status {
	case service.StatusOK:
		s.writeAccess(w, r, http.StatusOK, resp)
	case service.StatusForbidden:
		s.writeAccess(w, r, http.StatusForbidden, resp)
	case service.StatusGatewayError:
		// The attempt was granted and recorded; only the side effect failed.
		writeJSON(w, http.StatusBadGateway, errorResponse{
			Error:    string(status),
			Message:  err.Error(),
			Response: &resp,
		})
	case service.StatusServiceUnavailable:
		writeError(w, http.StatusServiceUnavailable, string(status), err.Error())
	default:
		writeError(w, http.StatusInternalServerError, string(service.StatusInternalError), errorMessage(err))
	}
}

func (s *Server) writeAccess(w http.ResponseWriter, r *http.Request, status int, resp types.AccessResponse) {
	if wantsProtobuf(r) {
		msg, err := accessResponseToProto(resp)
		if err != nil {
			s.logger.Error("access response encode failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, string(service.StatusInternalError), "unexpected server error")
			return
		}
		writeProto(w, status, msg)
		return
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q, err := parseHistoryQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_query", err.Error())
		return
	}

	entries, err := s.historyService.Query(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, string(service.StatusOf(err)), err.Error())
		return
	}

	if wantsProtobuf(r) {
		msg, err := historyToProto(entries)
		if err != nil {
			s.logger.Error("history encode failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, string(service.StatusInternalError), "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// accessToken reads the token from the "token" query parameter or, failing
// that, from a JSON body {"token": "..."}. ok is false when neither carries
// one.
func accessToken(r *http.Request) (token string, ok bool, err error) {
	if q := r.URL.Query(); q.Has("token") {
		return q.Get("token"), true, nil
	}

	var req types.AccessRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return "", false, nil
		}
		return "", false, err
	}
	if req.Token == nil {
		return "", false, nil
	}
	return *req.Token, true, nil
}

func parseHistoryQuery(r *http.Request) (types.HistoryQuery, error) {
	values := r.URL.Query()
	var q types.HistoryQuery

	for _, bound := range []struct {
		key string
		dst **uint64
	}{
		{"time_min", &q.TimeMin},
		{"time_max", &q.TimeMax},
	} {
		if !values.Has(bound.key) {
			continue
		}
		v, err := strconv.ParseUint(values.Get(bound.key), 10, 64)
		if err != nil {
			return q, errors.New(bound.key + " must be a non-negative integer")
		}
		*bound.dst = &v
	}

	if values.Has("token") {
		v := values.Get("token")
		q.Token = &v
	}
	if values.Has("name") {
		v := values.Get("name")
		q.Name = &v
	}
	if values.Has("outcome") {
		o, err := types.ParseOutcome(values.Get("outcome"))
		if err != nil {
			return q, err
		}
		q.Outcome = &o
	}
	if values.Has("only_latest") {
		v, err := strconv.ParseBool(strings.TrimSpace(values.Get("only_latest")))
		if err != nil {
			return q, errors.New("only_latest must be a boolean")
		}
		q.OnlyLatest = v
	}
	return q, nil
}

func errorMessage(err error) string {
	if err == nil {
		return "unexpected server error"
	}
	return err.Error()
}

type errorResponse struct {
	Error    string                `json:"error"`
	Message  string                `json:"message"`
	Response *types.AccessResponse `json:"response,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
