package governance

import (
	"fmt"
	"regexp"
)

// CompiledRedaction is a pre-compiled redaction rule.
type CompiledRedaction struct {
	Pattern *regexp.Regexp
	Replace string
}

// CompileRedactionRules compiles every rule or fails on the first bad one.
func CompileRedactionRules(rules []RedactionRule) ([]*CompiledRedaction, error) {
	var compiled []*CompiledRedaction
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("redaction pattern %q: %w", r.Pattern, err)
		}
		compiled = append(compiled, &CompiledRedaction{Pattern: re, Replace: r.Replace})
	}
	return compiled, nil
}

// RedactOutput applies rules in order.
func RedactOutput(output string, rules []*CompiledRedaction) string {
	for _, r := range rules {
		output = r.Pattern.ReplaceAllString(output, r.Replace)
	}
	return output
}
