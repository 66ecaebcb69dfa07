package httpserver

import (
	"net/http"
	"time"
)

// New builds the HTTP server for the status API. Write timeouts stay unset on
// purpose: a manually triggered reconcile batch can legitimately hold its
// request open for the whole run.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
