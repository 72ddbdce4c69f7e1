package transformers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/frankawp/data-pipeline-builder/internal/etl"

	"github.com/dgraph-io/ristretto"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ── Expressions ────────────────────────────────────────────
// Filter conditions and computed mappings are expr-lang expressions. Record
// fields are top-level variables; "record" holds the raw field map and
// "vars" the pipeline variables.

// programs caches compiled expressions by source text. Pipelines reuse the
// same handful of expressions across runs.
var programs = newProgramCache()

func newProgramCache() *ristretto.Cache {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4, // ten times expected entries
		MaxCost:     1e3, // ~1000 programs
		BufferItems: 64,
	})
	if err != nil {
		panic(fmt.Sprintf("transformers: expression cache: %v", err))
	}
	return cache
}

// closureVars are expr-lang's own #-prefixed names inside predicates.
var closureVars = map[string]bool{"index": true, "acc": true}

// stripLegacyVars rewrites #name references written for the previous
// expression syntax to plain names. String literals and expr-lang closure
// variables are left as they are.
func stripLegacyVars(src string) string {
	if !strings.Contains(src, "#") {
		return src
	}
	var b strings.Builder
	b.Grow(len(src))
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			end := closingQuote(src, i)
			b.WriteString(src[i:end])
			i = end - 1
		case c == '#':
			j := i + 1
			for j < len(src) && isIdentByte(src[j], j == i+1) {
				j++
			}
			name := src[i+1 : j]
			if name == "" || closureVars[name] {
				b.WriteString(src[i:j])
			} else {
				b.WriteString(name)
			}
			i = j - 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// closingQuote returns the index just past the literal opened at src[start].
// Backquoted literals have no escapes. An unterminated literal runs to the
// end and is left for the compiler to reject.
func closingQuote(src string, start int) int {
	q := src[start]
	for i := start + 1; i < len(src); i++ {
		switch {
		case src[i] == '\\' && q != '`':
			i++
		case src[i] == q:
			return i + 1
		}
	}
	return len(src)
}

func isIdentByte(c byte, first bool) bool {
	switch {
	case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		return true
	case c >= '0' && c <= '9':
		return !first
	}
	return false
}

func compile(src string) (*vm.Program, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, fmt.Errorf("empty expression")
	}
	if cached, ok := programs.Get(src); ok {
		return cached.(*vm.Program), nil
	}
	prog, err := expr.Compile(stripLegacyVars(src), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, err
	}
	programs.Set(src, prog, 1)
	return prog, nil
}

// exprEnv builds the evaluation environment for one record.
func exprEnv(rec *etl.Record, vars map[string]any) map[string]any {
	env := make(map[string]any, rec.Len()+2)
	rec.Each(func(name string, v any) { env[name] = coerceNumeric(v) })
	env["record"] = rec.Map()
	if vars == nil {
		vars = map[string]any{}
	}
	env["vars"] = vars
	return env
}

// coerceNumeric turns numeric-looking strings into numbers so that text
// sources such as CSV compare naturally.
func coerceNumeric(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if s == "" || !strings.ContainsAny(s[:1], "0123456789+-.") {
		return v
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return v
}

func evaluate(prog *vm.Program, rec *etl.Record, vars map[string]any) (any, error) {
	return expr.Run(prog, exprEnv(rec, vars))
}
