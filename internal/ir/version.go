package ir

// Version constants for the IR encoding and the tool.
const (
	// IRVersion is the version of the canonical JSON encoding of comprehensions.
	IRVersion = "1"

	// ToolVersion is the relcomp version.
	ToolVersion = "0.1.0"
)
