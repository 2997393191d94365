package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/calmux/internal/operations"
)

// JSONResult encodes v as an indented JSON text result.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ErrorResult turns an operation error into a tool error. A blocked duplicate
// lists the matching events so the caller can decide whether to retry with
// allowDuplicates.
func ErrorResult(err error) *mcp.CallToolResult {
	var dup *operations.DuplicateError
	if errors.As(err, &dup) && len(dup.Duplicates) > 0 {
		data, merr := json.MarshalIndent(dup.Duplicates, "", "  ")
		if merr == nil {
			return mcp.NewToolResultError(err.Error() + "\n\nSimilar events:\n" + string(data))
		}
	}
	return mcp.NewToolResultError(err.Error())
}
