// Package api exposes manifest generation and schema validation over HTTP
// and MCP. Both transports dispatch to the same kit.Endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/subsurface-tools/dataload/pkg/kit"
	"github.com/subsurface-tools/dataload/pkg/manifest"
	"github.com/subsurface-tools/dataload/pkg/schema"
)

// Service holds the shared state behind the API endpoints.
type Service struct {
	Catalog  *schema.Catalog // nil when no schema directory is configured
	Defaults manifest.Options
	Log      *slog.Logger
}

// Shared request/response types used by both HTTP and MCP transports.

type generateReq struct {
	CSV      string
	Template map[string]any
	Opts     manifest.Options
}

type generateResponse struct {
	Manifests  []any `json:"manifests"`
	EmptyRows  int   `json:"empty_rows"`
	FailedRows int   `json:"failed_rows"`
}

type validateReq struct {
	Document map[string]any
	SchemaID string
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type schemasResponse struct {
	Count   int      `json:"count"`
	Schemas []string `json:"schemas"`
}

// mergeOptions overlays request options on the service defaults; only
// non-empty request fields win.
func (s *Service) mergeOptions(req manifest.Options) manifest.Options {
	out := s.Defaults
	if req.ArrayParent != "" {
		out.ArrayParent = req.ArrayParent
	}
	if req.ObjectParent != "" {
		out.ObjectParent = req.ObjectParent
	}
	if req.KindParent != "" {
		out.KindParent = req.KindParent
	}
	if req.LegalTag != "" {
		out.LegalTag = req.LegalTag
	}
	if req.ACLViewer != "" {
		out.ACLViewer = req.ACLViewer
	}
	if req.ACLOwner != "" {
		out.ACLOwner = req.ACLOwner
	}
	if req.RequiredJSON != "" {
		out.RequiredJSON = req.RequiredJSON
	}
	out.GroupFile = ""
	return out
}

// generateEndpoint runs the CSV-to-manifest engine on inline inputs. The
// request is staged into a scratch directory so the endpoint shares the
// exact code path of the generate command.
func generateEndpoint(s *Service) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*generateReq)
		if req.CSV == "" {
			return nil, fmt.Errorf("csv content is empty")
		}
		if len(req.Template) == 0 {
			return nil, fmt.Errorf("template is empty")
		}

		dir, err := os.MkdirTemp("", "dataload-api-*")
		if err != nil {
			return nil, fmt.Errorf("create scratch dir: %w", err)
		}
		defer os.RemoveAll(dir)

		csvPath := filepath.Join(dir, "input.csv")
		if err := os.WriteFile(csvPath, []byte(req.CSV), 0o600); err != nil {
			return nil, err
		}
		tplPath := filepath.Join(dir, "template.json")
		tplData, err := json.Marshal(req.Template)
		if err != nil {
			return nil, fmt.Errorf("encode template: %w", err)
		}
		if err := os.WriteFile(tplPath, tplData, 0o600); err != nil {
			return nil, err
		}
		outDir := filepath.Join(dir, "out")
		if err := os.Mkdir(outDir, 0o700); err != nil {
			return nil, err
		}

		res, err := manifest.Generate(csvPath, tplPath, outDir, s.mergeOptions(req.Opts), s.Log)
		if err != nil {
			return nil, err
		}

		resp := generateResponse{
			Manifests:  []any{},
			EmptyRows:  res.EmptyRows,
			FailedRows: res.FailedRows,
		}
		for _, path := range res.Files {
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			var doc any
			if err := json.Unmarshal(raw, &doc); err != nil {
				return nil, err
			}
			resp.Manifests = append(resp.Manifests, doc)
		}
		return resp, nil
	}
}

func validateEndpoint(s *Service) kit.Endpoint {
	return func(_ context.Context, request any) (any, error) {
		req := request.(*validateReq)
		if s.Catalog == nil {
			return nil, fmt.Errorf("no schema directory configured")
		}
		if req.SchemaID == "" {
			return nil, fmt.Errorf("schema id is required")
		}
		if err := s.Catalog.Validate(req.Document, req.SchemaID); err != nil {
			return validateResponse{Valid: false, Error: err.Error()}, nil
		}
		return validateResponse{Valid: true}, nil
	}
}

func listSchemasEndpoint(s *Service) kit.Endpoint {
	return func(_ context.Context, _ any) (any, error) {
		if s.Catalog == nil {
			return schemasResponse{Schemas: []string{}}, nil
		}
		return schemasResponse{Count: s.Catalog.Len(), Schemas: s.Catalog.IDs()}, nil
	}
}

// logging is the one middleware applied to every endpoint.
func logging(log *slog.Logger, name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, request)
			log.Info("endpoint served",
				"endpoint", name,
				"transport", kit.GetTransport(ctx),
				"duration", time.Since(start),
				"error", err)
			return resp, err
		}
	}
}
