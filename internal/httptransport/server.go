package httptransport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/datawire/dlib/dlog"

	"github.com/benaryorg/lxddns/internal/bus"
	"github.com/benaryorg/lxddns/internal/containername"
	"github.com/benaryorg/lxddns/internal/lxderr"
)

// Responder serves GET /resolve/v1/{name} over HTTPS, answering from the
// same local inventory probe the bus Responder uses.
type Responder struct {
	Bind           string
	TLSChainFile   string
	TLSKeyFile     string
	MaxConnections int
	Probe          bus.Inventory
}

// Run loads the TLS material (the one blocking startup step) and serves
// until ctx is cancelled.
func (r *Responder) Run(ctx context.Context) error {
	cert, err := tls.LoadX509KeyPair(r.TLSChainFile, r.TLSKeyFile)
	if err != nil {
		return lxderr.InvalidConfiguration.New(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/resolve/v1/", r.handleResolve)

	server := &http.Server{
		Addr:      r.Bind,
		Handler:   mux,
		TLSConfig: &tls.Config{Certificates: []tls.Certificate{cert}},
	}

	listener, err := net.Listen("tcp", r.Bind)
	if err != nil {
		return lxderr.HttpServerError.New(err)
	}
	if r.MaxConnections > 0 {
		listener = newBoundedListener(listener, r.MaxConnections)
	}
	tlsListener := tls.NewListener(listener, server.TLSConfig)

	errCh := make(chan error, 1)
	go func() {
		dlog.Infof(ctx, "http-responder: serving on %s", r.Bind)
		errCh <- server.ServeTLS(tlsListener, "", "")
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		<-errCh
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return lxderr.HttpServerError.New(err)
	}
}

func (r *Responder) handleResolve(w http.ResponseWriter, req *http.Request) {
	raw := strings.TrimPrefix(req.URL.Path, "/resolve/v1/")
	name, err := containername.Parse(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	addrs, found, err := r.Probe(req.Context(), name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var body apiResponse
	if found {
		body.V1 = &addrs
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}
