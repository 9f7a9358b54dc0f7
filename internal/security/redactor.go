// Package security keeps credentials out of logs and diagnostic output.
package security

import (
	"regexp"
	"slices"
	"strings"
	"sync"
)

// RedactPlaceholder replaces every redacted secret.
const RedactPlaceholder = "***REDACTED***"

// secretKeyPattern matches map keys whose values are credentials.
var secretKeyPattern = regexp.MustCompile(`(?i)(secret|token|password|api_key|apikey|credential)`)

// Redactor masks secrets in strings and config maps. Known key formats are
// matched by pattern; values only known at runtime (API keys from config,
// robot pairing tokens) are registered as literals.
// All methods are safe for concurrent use.
type Redactor struct {
	mu       sync.RWMutex
	patterns []*regexp.Regexp
	literals []string
}

// NewRedactor returns a Redactor loaded with DefaultPatterns.
func NewRedactor() *Redactor {
	return &Redactor{patterns: DefaultPatterns()}
}

// AddPattern registers an extra pattern.
func (r *Redactor) AddPattern(pattern *regexp.Regexp) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns = append(r.patterns, pattern)
}

// AddLiteral registers secret values. Empty and duplicate values are
// ignored. Longer literals are replaced first so a secret containing
// another never leaks its tail.
func (r *Redactor) AddLiteral(secrets ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range secrets {
		if s == "" || slices.Contains(r.literals, s) {
			continue
		}
		r.literals = append(r.literals, s)
	}
	slices.SortFunc(r.literals, func(a, b string) int { return len(b) - len(a) })
}

// Redact masks every pattern match and literal in s.
func (r *Redactor) Redact(s string) string {
	if s == "" {
		return s
	}

	r.mu.RLock()
	patterns, literals := r.patterns, r.literals
	r.mu.RUnlock()

	for _, p := range patterns {
		s = p.ReplaceAllStringFunc(s, func(m string) string {
			// Capture groups are kept: the first as a prefix (scheme,
			// header name), the second as a suffix.
			sub := p.FindStringSubmatch(m)
			switch len(sub) {
			case 2:
				return sub[1] + RedactPlaceholder
			case 3:
				return sub[1] + RedactPlaceholder + sub[2]
			}
			return RedactPlaceholder
		})
	}
	for _, lit := range literals {
		s = strings.ReplaceAll(s, lit, RedactPlaceholder)
	}
	return s
}

// RedactMap masks, in place, string values under secret-looking keys and
// any secret embedded in other string values. Nested maps and lists are
// walked.
func (r *Redactor) RedactMap(m map[string]any) {
	for k, v := range m {
		if secretKeyPattern.MatchString(k) {
			switch val := v.(type) {
			case string:
				if val != "" {
					m[k] = RedactPlaceholder
				}
				continue
			case []any:
				for i, item := range val {
					if _, ok := item.(string); ok {
						val[i] = RedactPlaceholder
					} else {
						val[i] = r.redactValue(item)
					}
				}
				continue
			}
		}
		m[k] = r.redactValue(v)
	}
}

func (r *Redactor) redactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		r.RedactMap(val)
		return val
	case []any:
		for i, item := range val {
			val[i] = r.redactValue(item)
		}
		return val
	case string:
		return r.Redact(val)
	default:
		return v
	}
}

// DefaultPatterns covers the credentials this service handles: LLM API
// keys, bearer tokens and URL passwords.
func DefaultPatterns() []*regexp.Regexp {
	return []*regexp.Regexp{
		// OpenAI style keys, including project keys (sk-proj-...).
		regexp.MustCompile(`sk-[a-zA-Z0-9_\-]{20,}`),
		// Hugging Face inference tokens.
		regexp.MustCompile(`hf_[a-zA-Z0-9]{20,}`),
		// Authorization header values.
		regexp.MustCompile(`(?i)(bearer\s+)[a-zA-Z0-9._\-+/=]{8,}`),
		// user:password@ in URLs (Milvus, proxies).
		regexp.MustCompile(`(://[^/\s:@]+:)[^@\s/]+(@)`),
	}
}
