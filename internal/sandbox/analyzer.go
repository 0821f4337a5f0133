package sandbox

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/assistmesh/adapter-runtime/pkg/observability"
)

// Issue is one finding from static analysis
type Issue struct {
	Line    int    `json:"line"`
	Module  string `json:"module,omitempty"`
	Message string `json:"message"`
}

// Analysis is the outcome of statically screening one source text. The stage
// is pure: none of the candidate code is executed.
type Analysis struct {
	IsSafe bool    `json:"is_safe"`
	Issues []Issue `json:"issues,omitempty"`
}

// Analyzer screens source text against a policy before any execution.
// Verdicts are cached by source hash so repeated submissions of identical
// generated code skip re-scanning.
type Analyzer struct {
	cache  *lru.Cache[string, *Analysis]
	logger observability.Logger
}

var (
	importRe  = regexp.MustCompile(`^\s*import\s+(.+)$`)
	fromRe    = regexp.MustCompile(`^\s*from\s+([\w.]+)\s+import\b`)
	dynamicRe = regexp.MustCompile(`\b(__import__|importlib)\b`)
	callRe    = regexp.MustCompile(`\b(eval|exec|compile|open)\s*\(`)
	attrRe    = regexp.MustCompile(`\b([A-Za-z_]\w*)\s*\.\s*(system|popen|spawnl?v?|fork|execv?e?|execl|kill)\b`)
)

// NewAnalyzer creates an analyzer with a bounded verdict cache
func NewAnalyzer(cacheSize int, logger observability.Logger) (*Analyzer, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	cache, err := lru.New[string, *Analysis](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating analysis cache: %w", err)
	}
	return &Analyzer{cache: cache, logger: logger}, nil
}

// Analyze screens code against the policy and returns the findings
func (a *Analyzer) Analyze(code string, policy Policy) *Analysis {
	key := cacheKey(code, policy)
	if cached, ok := a.cache.Get(key); ok {
		return cached
	}

	analysis := scan(code, policy)
	a.cache.Add(key, analysis)

	if !analysis.IsSafe {
		a.logger.Debug("Static analysis rejected code", map[string]interface{}{
			"issues": len(analysis.Issues),
		})
	}
	return analysis
}

func cacheKey(code string, policy Policy) string {
	sum := sha256.Sum256([]byte(policy.fingerprint() + "\x00" + code))
	return hex.EncodeToString(sum[:])
}

// scan walks the source line by line, tracking module aliases so primitives
// reached through an alias are still caught.
func scan(code string, policy Policy) *Analysis {
	analysis := &Analysis{IsSafe: true}
	flag := func(line int, module, message string) {
		analysis.IsSafe = false
		analysis.Issues = append(analysis.Issues, Issue{Line: line, Module: module, Message: message})
	}

	// alias -> imported module root
	aliases := make(map[string]string)
	denied := make(map[string]struct{}, len(policy.BlockedModules))
	for _, m := range policy.BlockedModules {
		denied[m] = struct{}{}
	}

	inTriple := false
	var tripleQuote string
	for i, raw := range strings.Split(code, "\n") {
		lineNo := i + 1
		line, nowInTriple, quote := stripLiterals(raw, inTriple, tripleQuote)
		inTriple, tripleQuote = nowInTriple, quote
		if strings.TrimSpace(line) == "" {
			continue
		}

		if m := fromRe.FindStringSubmatch(line); m != nil {
			module := moduleRoot(m[1])
			if !policy.Allows(module) {
				flag(lineNo, module, fmt.Sprintf("import of module %q is not permitted", module))
			}
			aliases[module] = module
		} else if m := importRe.FindStringSubmatch(line); m != nil {
			for _, clause := range strings.Split(m[1], ",") {
				parts := strings.Fields(strings.TrimSpace(clause))
				if len(parts) == 0 {
					continue
				}
				module := moduleRoot(parts[0])
				name := module
				if len(parts) == 3 && parts[1] == "as" {
					name = parts[2]
				}
				if !policy.Allows(module) {
					flag(lineNo, module, fmt.Sprintf("import of module %q is not permitted", module))
				}
				aliases[name] = module
			}
		}

		if dynamicRe.MatchString(line) {
			flag(lineNo, "", "dynamic import primitive is not permitted")
		}
		if m := callRe.FindStringSubmatch(line); m != nil {
			flag(lineNo, "", fmt.Sprintf("call to %q is not permitted", m[1]))
		}
		for _, m := range attrRe.FindAllStringSubmatch(line, -1) {
			base, attr := m[1], m[2]
			module, known := aliases[base]
			if !known {
				module = base
			}
			if _, isDenied := denied[module]; isDenied || known {
				flag(lineNo, module, fmt.Sprintf("reference to process primitive %s.%s is not permitted", module, attr))
			}
		}
	}
	return analysis
}

// stripLiterals blanks out string literals and comments in one line, carrying
// triple-quote state across lines so quoted source is never scanned.
func stripLiterals(line string, inTriple bool, tripleQuote string) (string, bool, string) {
	var sb strings.Builder
	i := 0
	for i < len(line) {
		if inTriple {
			if end := strings.Index(line[i:], tripleQuote); end >= 0 {
				i += end + len(tripleQuote)
				inTriple = false
				continue
			}
			return sb.String(), true, tripleQuote
		}
		c := line[i]
		if c == '#' {
			break
		}
		if c == '\'' || c == '"' {
			q := string(c)
			if strings.HasPrefix(line[i:], q+q+q) {
				if end := strings.Index(line[i+3:], q+q+q); end >= 0 {
					i += 3 + end + 3
					continue
				}
				return sb.String(), true, q + q + q
			}
			// single-quoted literal: scan to the closing quote
			j := i + 1
			for j < len(line) {
				if line[j] == '\\' {
					j += 2
					continue
				}
				if line[j] == c {
					break
				}
				j++
			}
			if j >= len(line) {
				break
			}
			i = j + 1
			continue
		}
		sb.WriteByte(c)
		i++
	}
	return sb.String(), false, ""
}
