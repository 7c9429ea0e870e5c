package dispenser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	metrics "github.com/docker/go-metrics"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/viant/podwork/tracing"
)

// DefaultPort is the port pods reach the master on.
const DefaultPort = 8080

// Server exposes a Service over HTTP.
type Server struct {
	service *Service
	addr    string
	router  *mux.Router
}

// NewServer creates a server listening on port; port <= 0 means DefaultPort.
func NewServer(service *Service, port int) *Server {
	if port <= 0 {
		port = DefaultPort
	}
	s := &Server{service: service, addr: ":" + strconv.Itoa(port), router: mux.NewRouter()}
	s.router.HandleFunc("/getid/{jobKey}/{totalCalls}", s.getID).Methods(http.MethodGet)
	s.router.HandleFunc("/getid/{jobKey}", s.reset).Methods(http.MethodDelete)
	s.router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.addr
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", s.addr).Info("dispenser listening")
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down dispenser: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) getID(w http.ResponseWriter, r *http.Request) {
	defer requestTimer.UpdateSince(time.Now())
	vars := mux.Vars(r)
	jobKey := vars["jobKey"]
	ctx, span := tracing.StartSpan(r.Context(), "dispenser.getid", "SERVER")
	span.WithAttributes(map[string]string{"job.key": jobKey, "remote": r.RemoteAddr})

	totalCalls, err := strconv.Atoi(vars["totalCalls"])
	if err != nil {
		span.SetStatusFromHTTPCode(http.StatusBadRequest)
		tracing.EndSpan(span, nil)
		http.Error(w, fmt.Sprintf("invalid total calls %q", vars["totalCalls"]), http.StatusBadRequest)
		return
	}
	index, err := s.service.NextIndex(ctx, jobKey, totalCalls)
	tracing.EndSpan(span, err)
	entry := logrus.WithFields(logrus.Fields{"job_key": jobKey, "remote": r.RemoteAddr})
	if err != nil {
		entry.WithError(err).Error("failed to dispense index")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	entry.WithField("index", index).Infof("sending id %d", index)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(strconv.Itoa(index)))
}

// reset drops the counter of a finished job.
func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	jobKey := mux.Vars(r)["jobKey"]
	if err := s.service.Reset(r.Context(), jobKey); err != nil {
		logrus.WithError(err).WithField("job_key", jobKey).Error("failed to reset counter")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	logrus.WithFields(logrus.Fields{"job_key": jobKey, "remote": r.RemoteAddr}).Info("counter reset")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}
