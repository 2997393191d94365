package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Result statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the outcome of the operation on one value.
type Result struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Summary aggregates the results of a batch.
type Summary struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// ParseStringOrArray parses a required parameter given as a string, an array
// of strings, or a string holding a JSON array of strings.
func ParseStringOrArray(param any, paramName string) ([]string, error) {
	if param == nil {
		return nil, fmt.Errorf("%s is required", paramName)
	}
	values, err := parse(param, paramName)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", paramName)
	}
	return values, nil
}

// ParseOptionalStringOrArray is like ParseStringOrArray but returns nil for a
// missing or empty parameter.
func ParseOptionalStringOrArray(param any, paramName string) ([]string, error) {
	if param == nil {
		return nil, nil
	}
	if s, ok := param.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	return parse(param, paramName)
}

func parse(param any, paramName string) ([]string, error) {
	switch v := param.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		if strings.HasPrefix(trimmed, "[") {
			var items []string
			// Strings that merely start with a bracket are taken literally.
			if err := json.Unmarshal([]byte(trimmed), &items); err == nil {
				return checkItems(items, paramName)
			}
		}
		return []string{v}, nil
	case []string:
		return checkItems(v, paramName)
	case []any:
		items := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			items = append(items, s)
		}
		return checkItems(items, paramName)
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}
}

func checkItems(items []string, paramName string) ([]string, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%s cannot be empty", paramName)
	}
	for i, item := range items {
		if strings.TrimSpace(item) == "" {
			return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
		}
	}
	return items, nil
}

// Process calls fn for each ID in order and collects the results. Failures
// do not stop the batch.
func Process(ctx context.Context, ids []string, fn func(ctx context.Context, id string) (any, error)) Summary {
	s := Summary{Results: make([]Result, 0, len(ids))}
	for _, id := range ids {
		res, err := fn(ctx, id)
		if err != nil {
			s.Results = append(s.Results, NewErrorResult(id, err))
			continue
		}
		s.Results = append(s.Results, NewSuccessResult(id, res))
	}
	s.count()
	return s
}

func (s *Summary) count() {
	s.Total = len(s.Results)
	s.Successful, s.Failed = 0, 0
	for _, r := range s.Results {
		if r.Status == StatusSuccess {
			s.Successful++
		} else {
			s.Failed++
		}
	}
}

// NewSuccessResult creates a success result
func NewSuccessResult(id string, result any) Result {
	return Result{ID: id, Status: StatusSuccess, Result: result}
}

// NewErrorResult creates an error result
func NewErrorResult(id string, err error) Result {
	return Result{ID: id, Status: StatusError, Error: err.Error()}
}
