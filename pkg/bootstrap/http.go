package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"connectivity/internal/constants"
	"connectivity/internal/logger"
)

// ServeHTTP runs server until ctx is done, then shuts it down. It returns
// nil only for a shutdown caused by ctx.
func ServeHTTP(ctx context.Context, server *http.Server, log logger.Logger) error {
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}
	return Serve(ctx, server, ln, log)
}

func Serve(ctx context.Context, server *http.Server, ln net.Listener, log logger.Logger) error {
	errChan := make(chan error, 1)
	go func() {
		log.InfowCtx(ctx, "Server listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
			return
		}
		errChan <- nil
	}()

	select {
	case err := <-errChan:
		if err == nil {
			return fmt.Errorf("server stopped unexpectedly")
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	log.InfowCtx(ctx, "Server stopped")
	return nil
}
