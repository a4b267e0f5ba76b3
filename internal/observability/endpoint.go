// endpoint.go: standalone Prometheus endpoint for the offline commands
package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/ycry/ycry-go/internal/logger"
)

const debugPath = "/debug/pprof/"

// Endpoint serves /metrics, and optionally pprof, on its own listener. The
// HTTP API mounts Handler directly instead.
type Endpoint struct {
	server        *http.Server
	ListenAddress string
}

// NewEndpoint creates an Endpoint for m. debug adds the pprof routes.
func NewEndpoint(listen string, m *Metrics, debug bool) (*Endpoint, error) {
	if listen == "" {
		return nil, fmt.Errorf("metrics listen address is required")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if debug {
		RegisterDebugHandlers(mux)
	}
	return &Endpoint{
		ListenAddress: listen,
		server: &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// RegisterDebugHandlers adds pprof debugging routes to the provided mux
func RegisterDebugHandlers(mux *http.ServeMux) {
	mux.HandleFunc(debugPath, pprof.Index)
	mux.HandleFunc(debugPath+"cmdline", pprof.Cmdline)
	mux.HandleFunc(debugPath+"profile", pprof.Profile)
	mux.HandleFunc(debugPath+"symbol", pprof.Symbol)
	mux.HandleFunc(debugPath+"trace", pprof.Trace)
	mux.Handle(debugPath+"allocs", pprof.Handler("allocs"))
	mux.Handle(debugPath+"goroutine", pprof.Handler("goroutine"))
	mux.Handle(debugPath+"heap", pprof.Handler("heap"))
}

// Start listens on the endpoint address and serves in the background until
// ctx is done. The returned channel is closed once the server has stopped.
func (e *Endpoint) Start(ctx context.Context, log logger.Logger) (<-chan struct{}, error) {
	ln, err := net.Listen("tcp", e.ListenAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", e.ListenAddress, err)
	}
	e.ListenAddress = ln.Addr().String()

	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(done)
		log.Info("Metrics endpoint starting", logger.String("address", e.ListenAddress))
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Metrics endpoint failed", logger.Error(err))
		}
	}()
	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.server.Shutdown(shutdownCtx); err != nil {
			log.Warn("Failed to shut down metrics endpoint", logger.Error(err))
		}
		<-done
	}()
	return stopped, nil
}

// ServeMetrics starts an Endpoint for m on listen. The returned function
// stops the endpoint and waits for it to exit.
func ServeMetrics(ctx context.Context, listen string, m *Metrics, debug bool, log logger.Logger) (func(), error) {
	e, err := NewEndpoint(listen, m, debug)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	stopped, err := e.Start(ctx, log)
	if err != nil {
		cancel()
		return nil, err
	}
	return func() {
		cancel()
		<-stopped
	}, nil
}
