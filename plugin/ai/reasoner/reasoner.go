// Package reasoner provides the role-parameterized language reasoning capability.
//
// A single Reasoner interface serves every role. Callers pass structured
// context plus free text and decode the structured result themselves.
package reasoner

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Role selects the prompt and output schema of a reasoning call.
type Role string

const (
	RoleClassify Role = "classify"
	RoleInstruct Role = "instruct"
	RoleCalm     Role = "calm"
	RoleReport   Role = "report"
)

var (
	// ErrUnavailable is returned when the reasoning backend cannot serve the call.
	ErrUnavailable = errors.New("reasoner unavailable")
	// ErrTimeout is returned when a call exceeds its deadline.
	ErrTimeout = errors.New("reasoner timeout")
)

// Request is one reasoning call.
type Request struct {
	Role    Role
	Context map[string]any
	Text    string
}

// Result is the structured output of a reasoning call.
type Result struct {
	Fields map[string]any
	// Raw is the unparsed backend output, kept for logs.
	Raw string
}

// Reasoner performs one role's reasoning.
type Reasoner interface {
	Reason(ctx context.Context, req *Request) (*Result, error)
}

// Func adapts a function to Reasoner.
type Func func(ctx context.Context, req *Request) (*Result, error)

func (f Func) Reason(ctx context.Context, req *Request) (*Result, error) {
	return f(ctx, req)
}

// NewResult builds a Result from fields.
func NewResult(fields map[string]any) *Result {
	if fields == nil {
		fields = map[string]any{}
	}
	return &Result{Fields: fields}
}

// String returns a trimmed string field.
func (r *Result) String(key string) string {
	if r == nil {
		return ""
	}
	switch v := r.Fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	}
	return ""
}

// Float returns a numeric field, 0 when absent.
func (r *Result) Float(key string) float64 {
	if r == nil {
		return 0
	}
	switch v := r.Fields[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Bool returns a boolean field.
func (r *Result) Bool(key string) bool {
	if r == nil {
		return false
	}
	v, _ := r.Fields[key].(bool)
	return v
}

// Strings returns a list field, dropping empty entries.
func (r *Result) Strings(key string) []string {
	if r == nil {
		return nil
	}
	var out []string
	switch v := r.Fields[key].(type) {
	case []string:
		for _, s := range v {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// Facts returns key/value pairs from a field holding either a map or a list
// of {"key","value"} objects.
func (r *Result) Facts(key string) map[string]string {
	if r == nil {
		return nil
	}
	out := map[string]string{}
	switch v := r.Fields[key].(type) {
	case map[string]string:
		for k, val := range v {
			out[k] = val
		}
	case map[string]any:
		for k, val := range v {
			if s, ok := val.(string); ok {
				out[k] = s
			}
		}
	case []any:
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			k, _ := obj["key"].(string)
			val, _ := obj["value"].(string)
			if k = strings.TrimSpace(k); k != "" {
				out[k] = strings.TrimSpace(val)
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
