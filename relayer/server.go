// Package relayer exposes the Rain Cloud Protocol over HTTP: delegated mint
// submission, ledger reads, digest previews, and signed owner operations.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eip712"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/eventlog"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/mintauth"
	"github.com/sekadau-online/The-Cloud-Rain-Protocol/token"
)

// Server wires the protocol components behind the HTTP API. The journal may
// be nil, in which case /events serves an empty list.
type Server struct {
	encoder    *eip712.Encoder
	token      *token.Token
	authorizer *mintauth.Authorizer
	journal    *eventlog.Journal

	corsOrigins []string
	logger      zerolog.Logger

	now func() time.Time
}

func NewServer(encoder *eip712.Encoder, ledger *token.Token, authorizer *mintauth.Authorizer, journal *eventlog.Journal, corsOrigins []string, logger zerolog.Logger) *Server {
	return &Server{
		encoder:     encoder,
		token:       ledger,
		authorizer:  authorizer,
		journal:     journal,
		corsOrigins: corsOrigins,
		logger:      logger,
		now:         time.Now,
	}
}

// Handler builds the full route and middleware stack.
func (server *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ping", server.PingHandler)
	mux.HandleFunc("/status", server.StatusHandler)
	mux.HandleFunc("/address", server.AddressHandler)
	mux.HandleFunc("/nonce", server.NonceHandler)
	mux.HandleFunc("/balance", server.BalanceHandler)
	mux.HandleFunc("/events", server.EventsHandler)
	mux.HandleFunc("/hash", server.HashHandler)
	mux.HandleFunc("/mint", server.MintHandler)
	mux.HandleFunc("/admin/mint", server.AdminMintHandler)
	mux.HandleFunc("/admin/pause", server.AdminPauseHandler)
	mux.HandleFunc("/admin/unpause", server.AdminUnpauseHandler)

	// Set middleware, from bottom to top
	commonHandler := server.corsMiddleware(mux)
	commonHandler = server.logMiddleware(commonHandler)
	commonHandler = server.panicMiddleware(commonHandler)

	return commonHandler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (server *Server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Handler(),
		ReadTimeout:  40 * time.Second,
		WriteTimeout: 40 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
			server.logger.Error().Err(shutdownErr).Msg("graceful shutdown failed")
		}
	}()

	server.logger.Info().Str("addr", addr).Msg("starting relayer server")
	serveErr := httpServer.ListenAndServe()
	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server listener: %w", serveErr)
	}
	<-shutdownDone
	return nil
}
