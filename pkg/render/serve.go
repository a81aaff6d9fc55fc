package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Serve exposes dir over HTTP on addr until ctx is cancelled
func Serve(ctx context.Context, addr, dir string, log *logrus.Entry) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           logRequests(http.FileServer(http.Dir(dir)), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Serving %s on http://%s/", dir, addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info("Shutting down file server...")
		return srv.Shutdown(shutdownCtx)
	}
}

func logRequests(next http.Handler, log *logrus.Entry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Debug("Request")
		next.ServeHTTP(w, r)
	})
}
