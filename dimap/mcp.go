// CLAUDE:SUMMARY Registers all dimap MCP tools — validate, analyze, suggest, remap, extract TOML, write file.
package dimap

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/twbmap/kit"
)

// RegisterMCP registers the dimension-mapping tools on an MCP server.
func (s *Service) RegisterMCP(srv *mcp.Server) {
	s.registerValidateMappingTool(srv)
	s.registerValidateWorkbookTool(srv)
	s.registerAnalyzeWorkbookTool(srv)
	s.registerSuggestMappingsTool(srv)
	s.registerRemapDimensionsTool(srv)
	s.registerExtractTOMLTool(srv)
	s.registerWriteFileTool(srv)
}

// inputSchema builds a JSON Schema object with type "object".
func inputSchema(properties map[string]any, required []string) map[string]any {
	sch := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		sch["required"] = required
	}
	return sch
}

// --- validate_mapping_file ---

type validateMappingRequest struct {
	MappingFilePath string `json:"mapping_file_path"`
}

func (s *Service) registerValidateMappingTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "validate_mapping_file",
		Description: "Validate a CSV mapping file of original,replacement dimension name pairs. Returns the parsed mappings and a report of every problem found.",
		InputSchema: inputSchema(map[string]any{
			"mapping_file_path": map[string]any{"type": "string", "description": "Path to the mapping CSV file"},
		}, []string{"mapping_file_path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*validateMappingRequest)
		res, err := s.ValidateMappingFile(ctx, r.MappingFilePath)
		// Validation findings travel in the report, not the error; a tool
		// error would drop them. Only failures that produced no report
		// (unreadable or oversized input) surface as errors.
		if err != nil && (res == nil || res.Report == nil) {
			return nil, err
		}
		return res, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r validateMappingRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- validate_tableau_workbook ---

type validateWorkbookRequest struct {
	WorkbookFilePath string `json:"workbook_file_path"`
}

func (s *Service) registerValidateWorkbookTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "validate_tableau_workbook",
		Description: "Validate a Tableau .twb workbook: well-formed XML, expected structure, and a cross-check of field references against the catalog.",
		InputSchema: inputSchema(map[string]any{
			"workbook_file_path": map[string]any{"type": "string", "description": "Path to the .twb workbook file"},
		}, []string{"workbook_file_path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*validateWorkbookRequest)
		res, err := s.ValidateWorkbook(ctx, r.WorkbookFilePath)
		if err != nil && (res == nil || res.Report == nil) {
			return nil, err
		}
		return res, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r validateWorkbookRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- analyze_workbook ---

func (s *Service) registerAnalyzeWorkbookTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "analyze_workbook",
		Description: "Analyze a Tableau workbook: field catalog with kinds and roles, per-field reference counts, and the set of rename-eligible dimensions.",
		InputSchema: inputSchema(map[string]any{
			"workbook_file_path": map[string]any{"type": "string", "description": "Path to the .twb workbook file"},
		}, []string{"workbook_file_path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*validateWorkbookRequest)
		return s.AnalyzeWorkbook(ctx, r.WorkbookFilePath)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r validateWorkbookRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- suggest_mappings ---

type suggestRequest struct {
	WorkbookFilePath string `json:"workbook_file_path"`
	OutputFilePath   string `json:"output_file_path"`
}

func (s *Service) registerSuggestMappingsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "suggest_mappings",
		Description: "Generate normalized rename suggestions for a workbook's dimensions and write them as a mapping CSV. Identity renames are omitted.",
		InputSchema: inputSchema(map[string]any{
			"workbook_file_path": map[string]any{"type": "string", "description": "Path to the .twb workbook file"},
			"output_file_path":   map[string]any{"type": "string", "description": "Path to write the suggestion CSV to"},
		}, []string{"workbook_file_path", "output_file_path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*suggestRequest)
		return s.SuggestMappings(ctx, r.WorkbookFilePath, r.OutputFilePath)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r suggestRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- remap_dimensions ---

type remapRequest struct {
	MappingFilePath  string `json:"mapping_file_path"`
	WorkbookFilePath string `json:"workbook_file_path"`
	OutputFilePath   string `json:"output_file_path"`
}

func (s *Service) registerRemapDimensionsTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "remap_dimensions",
		Description: "Apply a mapping CSV to a Tableau workbook, renaming every structural occurrence of each dimension, and write the rewritten workbook. All-or-nothing: on failure no output file is produced.",
		InputSchema: inputSchema(map[string]any{
			"mapping_file_path":  map[string]any{"type": "string", "description": "Path to the mapping CSV file"},
			"workbook_file_path": map[string]any{"type": "string", "description": "Path to the source .twb workbook file"},
			"output_file_path":   map[string]any{"type": "string", "description": "Path to write the remapped workbook to"},
		}, []string{"mapping_file_path", "workbook_file_path", "output_file_path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*remapRequest)
		return s.RemapDimensions(ctx, r.MappingFilePath, r.WorkbookFilePath, r.OutputFilePath)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r remapRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- extract_toml_mappings ---

type extractTOMLRequest struct {
	TOMLFilePath  string `json:"toml_file_path"`
	OutputCSVPath string `json:"output_csv_path"`
	Section       string `json:"section,omitempty"`
}

func (s *Service) registerExtractTOMLTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "extract_toml_mappings",
		Description: "Extract dimension rename pairs from a TOML configuration file (e.g. a [columns.other_renames] section) and write them as a mapping CSV.",
		InputSchema: inputSchema(map[string]any{
			"toml_file_path":  map[string]any{"type": "string", "description": "Path to the TOML configuration file to analyze"},
			"output_csv_path": map[string]any{"type": "string", "description": "Path to write the extracted mapping CSV to"},
			"section":         map[string]any{"type": "string", "description": "Dotted table path holding the renames (e.g. columns.other_renames); auto-detected when omitted"},
		}, []string{"toml_file_path", "output_csv_path"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*extractTOMLRequest)
		return s.ExtractTOMLMappings(ctx, r.TOMLFilePath, r.OutputCSVPath, r.Section)
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r extractTOMLRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}

// --- write_file ---

type writeFileRequest struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

func (s *Service) registerWriteFileTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "write_file",
		Description: "Write text content to a file atomically. Useful for staging a corrected mapping CSV next to the workbook.",
		InputSchema: inputSchema(map[string]any{
			"file_path": map[string]any{"type": "string", "description": "Path to write to"},
			"content":   map[string]any{"type": "string", "description": "File content"},
		}, []string{"file_path", "content"}),
	}

	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*writeFileRequest)
		if err := s.WriteFile(ctx, r.FilePath, r.Content); err != nil {
			return nil, err
		}
		return map[string]any{"written": r.FilePath}, nil
	}

	decode := func(req *mcp.CallToolRequest) (*kit.MCPDecodeResult, error) {
		var r writeFileRequest
		if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
			return nil, err
		}
		return &kit.MCPDecodeResult{Request: &r}, nil
	}

	kit.RegisterMCPTool(srv, tool, endpoint, decode)
}
