package airbrake

import (
	"regexp"

	"github.com/roadrunner-server/errors"
)

const filteredValue = "[Filtered]"

// ParameterFilter redacts values whose keys hit the block list or miss a
// non-empty allow list.
type ParameterFilter struct {
	Block []*regexp.Regexp
	Allow []*regexp.Regexp
}

// NewParameterFilter compiles the configured block and allow lists
func NewParameterFilter(blockList, allowList []string) (*ParameterFilter, error) {
	const op = errors.Op("airbrake_parameter_filter")

	block, err := CompilePatterns(blockList)
	if err != nil {
		return nil, errors.E(op, err)
	}
	allow, err := CompilePatterns(allowList)
	if err != nil {
		return nil, errors.E(op, err)
	}

	return &ParameterFilter{Block: block, Allow: allow}, nil
}

// CompilePatterns compiles each pattern as a case-insensitive regular expression
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Apply runs FilterParameters with the filter's lists
func (f *ParameterFilter) Apply(params map[string]string) map[string]string {
	if f == nil {
		return copyParameters(params)
	}
	return FilterParameters(params, f.Block, f.Allow)
}

// FilterParameters returns a copy of params with redacted values. The input is
// never modified; nil yields nil.
func FilterParameters(params map[string]string, block, allow []*regexp.Regexp) map[string]string {
	if params == nil {
		return nil
	}

	filtered := make(map[string]string, len(params))
	for key, value := range params {
		if (len(block) > 0 && matchesAny(key, block)) || (len(allow) > 0 && !matchesAny(key, allow)) {
			filtered[key] = filteredValue
			continue
		}
		filtered[key] = value
	}
	return filtered
}

// TruncateParameters cuts values longer than limit characters down to limit
// and appends "...". nil yields nil.
func TruncateParameters(params map[string]string, limit int) map[string]string {
	if params == nil {
		return nil
	}

	truncated := make(map[string]string, len(params))
	for key, value := range params {
		truncated[key] = truncateString(value, limit)
	}
	return truncated
}

func truncateString(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

func matchesAny(key string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(key) {
			return true
		}
	}
	return false
}

func copyParameters(params map[string]string) map[string]string {
	if params == nil {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}
