// Command uvhttp-server wires pkg/uvhttp/config, pkg/uvhttp/server, and a
// Prometheus scrape endpoint together, in the manner of
// bolt/examples/hello/main.go but driven by a config file/env instead of
// inline route registration alone.
package main

import (
	"flag"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/uvhttp/pkg/uvhttp/config"
	"github.com/yourusername/uvhttp/pkg/uvhttp/http11"
	"github.com/yourusername/uvhttp/pkg/uvhttp/router"
	"github.com/yourusername/uvhttp/pkg/uvhttp/server"
)

func main() {
	configPath := flag.String("config", "", "path to a uvhttp key=value config file")
	host := flag.String("host", "0.0.0.0", "listen host")
	port := flag.Int("port", 8080, "listen port")
	metricsAddr := flag.String("metrics-addr", "", "if set, serve /metrics on this address")
	staticDir := flag.String("static-dir", "", "if set, serve static files from this directory as a fallback route")
	flag.Parse()

	logger := logrus.New()
	entry := logrus.NewEntry(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		entry.WithError(err).Fatal("loading config")
	}
	if err := cfg.Validate(); err != nil {
		entry.WithError(err).Fatal("invalid config")
	}
	logger.SetLevel(logrus.Level(cfg.LogLevel))

	s := server.New(entry)
	if err := s.Configure(cfg.ToServerConfig()); err != nil {
		entry.WithError(err).Fatal("configuring server")
	}

	if *staticDir != "" {
		s.EnableStaticFiles(*staticDir, 64<<20, 1024, 0)
	}

	s.RegisterRoute("/health", router.MethodGET, func(req *http11.Request, params []router.Param) *http11.Response {
		resp := http11.NewResponse()
		resp.SetHeader("Content-Type", "application/json")
		resp.SetBody([]byte(`{"status":"healthy"}`))
		return resp
	})

	reg := prometheus.NewRegistry()
	s.EnableMetrics(reg)

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			entry.WithField("addr", *metricsAddr).Info("serving metrics")
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				entry.WithError(err).Error("metrics listener exited")
			}
		}()
	}

	if err := s.Listen(*host, *port); err != nil {
		entry.WithError(err).Fatal("listening")
	}
	entry.WithField("host", *host).WithField("port", *port).Info("uvhttp server starting")

	if err := s.Run(); err != nil {
		entry.WithError(err).Fatal("server run loop exited")
	}
}
