package toolrunner

import "toolagent/llm"

// Names of the six tool primitives this agent can invoke. KnownTools,
// Catalogue and the Runner's dispatch table are all keyed by these names,
// so adding a seventh primitive means touching each of those three.
const (
	ToolListDir   = "list_dir"
	ToolReadFile  = "read_file"
	ToolWriteFile = "write_file"
	ToolEditFile  = "edit_file"
	ToolExecCmd   = "exec_cmd"
	ToolGrep      = "grep"
)

// KnownTools is the set every ToolCall.tool_name is validated against.
var KnownTools = map[string]struct{}{
	ToolListDir:   {},
	ToolReadFile:  {},
	ToolWriteFile: {},
	ToolEditFile:  {},
	ToolExecCmd:   {},
	ToolGrep:      {},
}

// Catalogue is the single declarative description of the six primitives,
// shared between the LLM's structured-tool channel and the Planner's
// textual tool listing.
func Catalogue() []llm.ToolSchema {
	return []llm.ToolSchema{
		{
			Name:        ToolListDir,
			Description: "List directory entries, one per line, with a trailing / on directories.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{"type": "string", "description": "Directory path, relative to the workspace root unless absolute."},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        ToolReadFile,
			Description: "Read a file's contents, optionally starting at a line offset and limited to a number of lines.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":   map[string]any{"type": "string", "description": "File path, relative to the workspace root unless absolute."},
					"offset": map[string]any{"type": "integer", "description": "0-based starting line index (optional)."},
					"limit":  map[string]any{"type": "integer", "description": "Maximum number of lines to read (optional)."},
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        ToolWriteFile,
			Description: "Write content to a file, creating parent directories as needed.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string", "description": "File path, relative to the workspace root unless absolute."},
					"content": map[string]any{"type": "string", "description": "Content to write."},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        ToolEditFile,
			Description: "Replace an exact, unique occurrence of oldText with newText in a file.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    map[string]any{"type": "string", "description": "File path, relative to the workspace root unless absolute."},
					"oldText": map[string]any{"type": "string", "description": "Exact text to find; must appear exactly once."},
					"newText": map[string]any{"type": "string", "description": "Replacement text."},
				},
				"required": []string{"path", "oldText", "newText"},
			},
		},
		{
			Name:        ToolExecCmd,
			Description: "Run a shell command in the workspace directory and capture combined stdout/stderr.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{"type": "string", "description": "Shell command to execute."},
					"timeout": map[string]any{"type": "integer", "description": "Requested timeout in seconds (optional, capped by server policy)."},
				},
				"required": []string{"command"},
			},
		},
		{
			Name:        ToolGrep,
			Description: "Search a file or recursively search a directory for a substring pattern, one match per line with a file:line prefix.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pattern": map[string]any{"type": "string", "description": "Substring to search for."},
					"path":    map[string]any{"type": "string", "description": "File or directory to search, relative to the workspace root unless absolute."},
				},
				"required": []string{"pattern"},
			},
		},
	}
}
