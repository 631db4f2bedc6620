package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"github.com/subsurface-tools/dataload/pkg/api"
	"github.com/subsurface-tools/dataload/pkg/chassis"
	"github.com/subsurface-tools/dataload/pkg/manifest"
	"github.com/subsurface-tools/dataload/pkg/schema"
)

func newService(cfg config, logger *slog.Logger) *api.Service {
	svc := &api.Service{
		Defaults: manifest.Options{
			SchemaDir:      cfg.SchemaDir,
			NamespaceName:  cfg.NamespaceName,
			NamespaceValue: cfg.NamespaceValue,
			LegalTag:       cfg.Connection.LegalTag,
			ACLViewer:      cfg.Connection.ACLViewer,
			ACLOwner:       cfg.Connection.ACLOwner,
		},
		Log: logger,
	}

	if cfg.SchemaDir != "" {
		cat, err := schema.Load(cfg.SchemaDir, cfg.NamespaceName, cfg.NamespaceValue)
		if err != nil {
			logger.Error("failed to load schemas", "error", err)
			os.Exit(1)
		}
		logger.Info("schemas loaded", "count", cat.Len())
		svc.Catalog = cat
	}
	return svc
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	secure := fs.Bool("secure", false, "serve TLS with HTTP/3 and MCP-over-QUIC on the same port")
	fs.Parse(args)

	logger := newLogger()
	cfg := loadConfig(*cfgPath, logger)
	svc := newService(cfg, logger)
	router := api.NewRouter(svc)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *secure {
		mcpSrv := server.NewMCPServer("dataload", "1.0.0")
		api.RegisterMCPTools(mcpSrv, svc)

		srv, err := chassis.New(chassis.Config{
			Addr:      cfg.Addr,
			CertFile:  cfg.TLSCert,
			KeyFile:   cfg.TLSKey,
			Handler:   router,
			MCPServer: mcpSrv,
			Logger:    logger,
		})
		if err != nil {
			logger.Error("chassis init failed", "error", err)
			os.Exit(1)
		}
		if err := srv.Start(ctx); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		logger.Info("shutting down")
		srv.Stop(context.Background())
		return
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	go func() {
		logger.Info("dataload listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	srv.Shutdown(context.Background())
}

func cmdMCP(args []string) {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	logger := newLogger()
	cfg := loadConfig(*cfgPath, logger)
	svc := newService(cfg, logger)

	mcpSrv := server.NewMCPServer("dataload", "1.0.0")
	api.RegisterMCPTools(mcpSrv, svc)

	if err := server.ServeStdio(mcpSrv); err != nil {
		logger.Error("mcp server error", "error", err)
		os.Exit(1)
	}
}
