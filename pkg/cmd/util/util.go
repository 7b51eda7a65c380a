// Package util provides the reusable server-config building blocks shared
// by the serve command and the server package: flag-registered HTTP
// listeners completed into runnable servers.
package util

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jzelinskie/stringz"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	log "github.com/treosh/lightci/internal/logging"
)

// HTTPServerConfig is the flag-facing configuration of one HTTP listener.
type HTTPServerConfig struct {
	HTTPAddress     string
	HTTPTLSCertPath string
	HTTPTLSKeyPath  string
	HTTPEnabled     bool

	flagPrefix string
}

// RegisterHTTPServerFlags adds the following flags for use with
// HTTPServerConfig:
// - "$PREFIX-addr"
// - "$PREFIX-tls-cert-path"
// - "$PREFIX-tls-key-path"
// - "$PREFIX-enabled"
func RegisterHTTPServerFlags(flags *pflag.FlagSet, config *HTTPServerConfig, flagPrefix, serviceName, defaultAddr string, defaultEnabled bool) {
	flagPrefix = stringz.DefaultEmpty(flagPrefix, "http")
	serviceName = stringz.DefaultEmpty(serviceName, "http")
	defaultAddr = stringz.DefaultEmpty(defaultAddr, ":8443")
	config.flagPrefix = flagPrefix

	flags.StringVar(&config.HTTPAddress, flagPrefix+"-addr", defaultAddr, "address to listen on to serve "+serviceName)
	flags.StringVar(&config.HTTPTLSCertPath, flagPrefix+"-tls-cert-path", "", "local path to the TLS certificate used to serve "+serviceName)
	flags.StringVar(&config.HTTPTLSKeyPath, flagPrefix+"-tls-key-path", "", "local path to the TLS key used to serve "+serviceName)
	flags.BoolVar(&config.HTTPEnabled, flagPrefix+"-enabled", defaultEnabled, "enable "+serviceName+" http server")
}

// Complete validates the configuration and binds it to a handler.
func (c *HTTPServerConfig) Complete(level zerolog.Level, handler http.Handler) (RunnableHTTPServer, error) {
	srv := &http.Server{
		Addr:    c.HTTPAddress,
		Handler: handler,
	}
	var serveFunc func() error
	switch {
	case c.HTTPTLSCertPath == "" && c.HTTPTLSKeyPath == "":
		serveFunc = func() error {
			log.Warn().Str("addr", srv.Addr).Str("prefix", c.flagPrefix).Msg("http server serving plaintext")
			return srv.ListenAndServe()
		}
	case c.HTTPTLSCertPath != "" && c.HTTPTLSKeyPath != "":
		serveFunc = func() error {
			log.WithLevel(level).Str("addr", srv.Addr).Str("prefix", c.flagPrefix).Msg("https server started serving")
			return srv.ListenAndServeTLS(c.HTTPTLSCertPath, c.HTTPTLSKeyPath)
		}
	default:
		return nil, fmt.Errorf("failed to start http server: must provide both --%s-tls-cert-path and --%s-tls-key-path",
			c.flagPrefix,
			c.flagPrefix,
		)
	}

	return &completedHTTPServer{
		srvFunc: func() error {
			if err := serveFunc(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed while serving http: %w", err)
			}
			return nil
		},
		closeFunc: func() {
			if err := srv.Close(); err != nil {
				log.Warn().Str("addr", srv.Addr).Str("prefix", c.flagPrefix).Err(err).Msg("error stopping http server")
			}
			log.WithLevel(level).Str("addr", srv.Addr).Str("prefix", c.flagPrefix).Msg("http server stopped serving")
		},
		enabled: c.HTTPEnabled,
	}, nil
}

// RunnableHTTPServer is a listener bound to a handler, ready to serve.
type RunnableHTTPServer interface {
	ListenAndServe() error
	Close()
}

type completedHTTPServer struct {
	srvFunc   func() error
	closeFunc func()
	enabled   bool
}

func (c *completedHTTPServer) ListenAndServe() error {
	if !c.enabled {
		return nil
	}
	return c.srvFunc()
}

func (c *completedHTTPServer) Close() {
	c.closeFunc()
}
