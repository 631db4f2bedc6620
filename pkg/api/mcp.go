package api

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/subsurface-tools/dataload/pkg/kit"
	"github.com/subsurface-tools/dataload/pkg/manifest"
)

// RegisterMCPTools registers the manifest tools on the MCP server.
func RegisterMCPTools(srv *server.MCPServer, s *Service) {
	registerGenerate(srv, s)
	registerValidate(srv, s)
	registerListSchemas(srv, s)
}

func registerGenerate(srv *server.MCPServer, s *Service) {
	tool := mcp.NewTool("generate_manifests",
		mcp.WithDescription("Generate load-manifest JSON documents from CSV content and a JSON template with {{parameter}} placeholders."),
		mcp.WithString("csv", mcp.Required(), mcp.Description("CSV content; first row is the header")),
		mcp.WithString("template", mcp.Required(), mcp.Description("JSON template as a string")),
		mcp.WithString("legal_tag", mcp.Description("Legal tag stamped on each manifest")),
		mcp.WithString("acl_viewer", mcp.Description("ACL viewer group")),
		mcp.WithString("acl_owner", mcp.Description("ACL owner group")),
	)

	kit.RegisterMCPTool(srv, tool, logging(s.Log, "generate")(generateEndpoint(s)),
		func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			args := req.GetArguments()
			csvContent, _ := args["csv"].(string)
			tplStr, _ := args["template"].(string)
			var tpl map[string]any
			if err := json.Unmarshal([]byte(tplStr), &tpl); err != nil {
				return nil, fmt.Errorf("template is not a JSON object: %w", err)
			}
			opts := manifest.Options{}
			opts.LegalTag, _ = args["legal_tag"].(string)
			opts.ACLViewer, _ = args["acl_viewer"].(string)
			opts.ACLOwner, _ = args["acl_owner"].(string)
			return &kit.MCPDecodeResult{Request: &generateReq{CSV: csvContent, Template: tpl, Opts: opts}}, nil
		})
}

func registerValidate(srv *server.MCPServer, s *Service) {
	tool := mcp.NewTool("validate_manifest",
		mcp.WithDescription("Validate a manifest document against a schema from the loaded catalog."),
		mcp.WithString("document", mcp.Required(), mcp.Description("Manifest JSON as a string")),
		mcp.WithString("schema_id", mcp.Required(), mcp.Description("Schema $id to validate against")),
	)

	kit.RegisterMCPTool(srv, tool, logging(s.Log, "validate")(validateEndpoint(s)),
		func(req mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			args := req.GetArguments()
			docStr, _ := args["document"].(string)
			var doc map[string]any
			if err := json.Unmarshal([]byte(docStr), &doc); err != nil {
				return nil, fmt.Errorf("document is not a JSON object: %w", err)
			}
			id, _ := args["schema_id"].(string)
			return &kit.MCPDecodeResult{Request: &validateReq{Document: doc, SchemaID: id}}, nil
		})
}

func registerListSchemas(srv *server.MCPServer, s *Service) {
	tool := mcp.NewTool("list_schemas",
		mcp.WithDescription("List the schema ids loaded into the catalog."),
	)

	kit.RegisterMCPTool(srv, tool, logging(s.Log, "schemas")(listSchemasEndpoint(s)),
		func(_ mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
			return &kit.MCPDecodeResult{Request: nil}, nil
		})
}
