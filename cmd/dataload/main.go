package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/subsurface-tools/dataload/pkg/ingest"
)

type config struct {
	Addr           string        `yaml:"addr"`
	SchemaDir      string        `yaml:"schema_dir"`
	NamespaceName  string        `yaml:"namespace_name"`
	NamespaceValue string        `yaml:"namespace_value"`
	JournalPath    string        `yaml:"journal_path"`
	TokenEndpoint  string        `yaml:"token_endpoint"`
	TLSCert        string        `yaml:"tls_cert"`
	TLSKey         string        `yaml:"tls_key"`
	Connection     ingest.Config `yaml:"connection"`
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "generate":
		cmdGenerate(os.Args[2:])
	case "upload":
		cmdUpload(os.Args[2:])
	case "ingest":
		cmdIngest(os.Args[2:])
	case "status":
		cmdStatus(os.Args[2:])
	case "reports":
		cmdReports(os.Args[2:])
	case "verify":
		cmdVerify(os.Args[2:])
	case "delete":
		cmdDelete(os.Args[2:])
	case "serve":
		cmdServe(os.Args[2:])
	case "mcp":
		cmdMCP(os.Args[2:])
	case "mcp-call":
		cmdMCPCall(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: dataload <command>

Commands:
  generate  Generate load manifests from a CSV file and a JSON template
  upload    Upload dataset files and build the file location map
  ingest    Submit manifests to the ingestion workflow
  status    Check (and optionally wait for) submitted workflow runs
  reports   Summarize journaled workflow runs
  verify    Verify ingested records through the search service
  delete    Delete ingested records from storage
  serve     Start the HTTP API server (add --secure for TLS + HTTP/3 + MCP-over-QUIC)
  mcp       Serve the manifest tools over MCP on stdio
  mcp-call  Call a running secure server's MCP tools over QUIC
`)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig(path string, logger *slog.Logger) config {
	cfg := config{
		Addr:        ":8430",
		JournalPath: "output/runs.db",
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("no config file, using defaults", "path", path)
			return cfg
		}
		logger.Error("read config", "error", err)
		os.Exit(1)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Error("parse config", "error", err)
		os.Exit(1)
	}
	return cfg
}

// newClient wires the platform client from config plus the CLIENT_ID and
// CLIENT_SECRET environment variables.
func newClient(cfg config, logger *slog.Logger) *ingest.Client {
	var tokens ingest.TokenProvider
	if token := os.Getenv("ACCESS_TOKEN"); token != "" {
		tokens = ingest.StaticToken(token)
	} else {
		clientID := os.Getenv("CLIENT_ID")
		clientSecret := os.Getenv("CLIENT_SECRET")
		if clientID == "" || clientSecret == "" {
			logger.Error("CLIENT_ID and CLIENT_SECRET (or ACCESS_TOKEN) must be set")
			os.Exit(1)
		}
		tokens = &ingest.ClientCredentials{
			Endpoint:     cfg.TokenEndpoint,
			ClientID:     clientID,
			ClientSecret: clientSecret,
		}
	}
	return ingest.NewClient(cfg.Connection, tokens, logger)
}

func openJournal(cfg config, logger *slog.Logger) *ingest.Journal {
	if dir := strings.TrimSuffix(cfg.JournalPath, "/"); strings.Contains(dir, "/") {
		os.MkdirAll(dir[:strings.LastIndex(dir, "/")], 0o755)
	}
	j, err := ingest.OpenJournal(cfg.JournalPath)
	if err != nil {
		logger.Error("open run journal", "error", err)
		os.Exit(1)
	}
	return j
}
