package main

// CLIResult is the top-level JSON envelope for all query commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIModule is a JSON-friendly module representation.
type CLIModule struct {
	ID     int64  `json:"id"`
	Path   string `json:"path"`
	Name   string `json:"name,omitempty"`
	File   string `json:"file"`
	Inline bool   `json:"inline,omitempty"`
}

// CLIItem is a directly declared item.
type CLIItem struct {
	Module     string `json:"module"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Visibility string `json:"visibility"`
	DefID      int64  `json:"def_id"`
	File       string `json:"file,omitempty"`
	Macro      string `json:"macro,omitempty"`
}

// CLIBinding is one resolved name in a module's scope.
type CLIBinding struct {
	Module  string `json:"module"`
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	DefID   int64  `json:"def_id,omitempty"`
	DefKind string `json:"def_kind,omitempty"`
	Target  string `json:"target,omitempty"`
}

// CLIImport is a JSON-friendly use declaration.
type CLIImport struct {
	Module     string `json:"module"`
	Path       string `json:"path"`
	Alias      string `json:"alias,omitempty"`
	Glob       bool   `json:"glob,omitempty"`
	Visibility string `json:"visibility"`
}

// CLIReexport is a public import that re-exports a name.
type CLIReexport struct {
	Module string `json:"module"`
	From   string `json:"from"`
	Name   string `json:"name,omitempty"`
	DefID  int64  `json:"def_id,omitempty"`
	Glob   bool   `json:"glob,omitempty"`
}

// CLIDiagnostic is a problem found while indexing.
type CLIDiagnostic struct {
	Module   string `json:"module"`
	Name     string `json:"name,omitempty"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}
