package web

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
	"net/http"
	"taglogger/cmd/taglogger/config"
	"taglogger/cmd/taglogger/options"
	"taglogger/pkg/collector"
	"taglogger/pkg/gateway"
	"taglogger/pkg/generic"
	"taglogger/pkg/runtime"
)

type Server struct {
	*generic.Server
	*config.Config
}

func NewServer(router *gin.Engine, o *options.Options, config *config.Config) (*Server, error) {
	server := &Server{
		Server: &generic.Server{
			Router: router,
			Port:   o.Port,
		},
		Config: config,
	}

	server.InstallHandlers()

	return server, nil
}

func (s *Server) InstallHandlers() {
	v1 := s.Router.Group("/api/v1")
	collector.InstallHandler(v1, s.Config.CollectorMgr)
	gateway.InstallHandler(v1, s.Config.GatewayMgr)
}

// Serve listens in the background and registers the server's shutdown with
// the config closers.
func (s *Server) Serve() error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.Port),
		Handler: s.Router,
	}
	if len(s.Config.CertFile) != 0 && len(s.Config.KeyFile) != 0 {
		x509KeyPair, err := tls.LoadX509KeyPair(s.Config.CertFile, s.Config.KeyFile)
		if err != nil {
			return err
		}
		srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{x509KeyPair},
		}
		go func() {
			if err := srv.ListenAndServeTLS("", ""); !errors.Is(err, http.ErrServerClosed) {
				klog.ErrorS(err, "Status API stopped", "port", s.Port)
			}
		}()
	} else {
		go func() {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				klog.ErrorS(err, "Status API stopped", "port", s.Port)
			}
		}()
	}

	s.Config.Closers = append(s.Config.Closers, runtime.LabeledCloser{
		Label: "http",
		Closer: func(ctx context.Context) error {
			srv.SetKeepAlivesEnabled(false)
			return srv.Shutdown(ctx)
		},
	})
	return nil
}
