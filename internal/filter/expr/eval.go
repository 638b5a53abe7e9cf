package expr

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
	"github.com/tidwall/gjson"
)

// Param is one entry of the caller-supplied parameter map: a raw string
// value alongside its declared chain-specific kind (e.g. "address", "u256",
// "i32", "bool", "map", "vec", "string"). Nested traversal re-derives the
// kind of each intermediate value as it descends.
type Param struct {
	Value string
	Kind  string
}

// Params is the root binding set an expression is evaluated against —
// synthesized per spec §4.5 from a transaction, decoded function call, or
// decoded log/event.
type Params map[string]Param

// Evaluate walks an Expr tree against params and returns its boolean result.
func Evaluate(e Expr, params Params) (bool, error) {
	switch n := e.(type) {
	case *And:
		left, err := Evaluate(n.Left, params)
		if err != nil {
			return false, err
		}
		if !left {
			return false, nil
		}
		return Evaluate(n.Right, params)
	case *Or:
		left, err := Evaluate(n.Left, params)
		if err != nil {
			return false, err
		}
		if left {
			return true, nil
		}
		return Evaluate(n.Right, params)
	case *Condition:
		return evalCondition(n, params)
	default:
		return false, &TypeMismatchError{Detail: "unknown expression node"}
	}
}

func evalCondition(c *Condition, params Params) (bool, error) {
	val, kind, err := resolveLhs(c.Lhs, params)
	if err != nil {
		return false, err
	}
	switch c.Op {
	case OpEq, OpNe:
		return evalEquality(c.Op, val, kind, c.Rhs)
	case OpGt, OpGe, OpLt, OpLe:
		return evalOrdering(c.Op, val, kind, c.Rhs)
	case OpContains:
		return evalContains(val, kind, c.Rhs)
	case OpStartsWith, OpEndsWith:
		return evalAffix(c.Op, val, kind, c.Rhs)
	default:
		return false, &UnsupportedOperatorError{Op: c.Op, Kind: kind}
	}
}

// resolveLhs resolves a Lhs path to its leaf string value and reclassified
// kind. A bare name (no traversal steps) resolves directly against the raw
// param — no JSON parse required, since roots are pre-decomposed scalars.
// A path with steps treats the root value as JSON (applying the Stellar
// map-shorthand normalization first), walks `.Key`/`[Index]` via
// PaesslerAG/jsonpath, then reclassifies the extracted leaf's kind via
// gjson (spec §4.5.1 steps 2-3).
func resolveLhs(lhs Lhs, params Params) (string, string, error) {
	root, ok := params[lhs.Name]
	if !ok {
		return "", "", &FieldNotFoundError{Field: lhs.Name}
	}
	if len(lhs.Steps) == 0 {
		return root.Value, root.Kind, nil
	}

	doc := normalizeMapShorthand(root.Value, root.Kind)
	var parsed any
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		return "", "", &ParseError{Path: lhs.Name, Err: err}
	}

	value, err := jsonpath.Get(buildJSONPath(lhs.Steps), parsed)
	if err != nil {
		last := lhs.Steps[len(lhs.Steps)-1]
		if last.IsIndex {
			return "", "", &IndexOutOfBoundsError{Index: last.Index}
		}
		return "", "", &FieldNotFoundError{Field: last.Key}
	}

	leafJSON, err := json.Marshal(value)
	if err != nil {
		return "", "", &ParseError{Path: lhs.Name, Err: err}
	}
	result := gjson.ParseBytes(leafJSON)
	return leafString(result), classifyKind(result, root.Kind), nil
}

// buildJSONPath renders traversal steps as a PaesslerAG/jsonpath query
// rooted at "$", quoting keys so they survive as literal map lookups
// regardless of their content.
func buildJSONPath(steps []PathStep) string {
	var b strings.Builder
	b.WriteByte('$')
	for _, s := range steps {
		if s.IsIndex {
			fmt.Fprintf(&b, "[%d]", s.Index)
		} else {
			fmt.Fprintf(&b, "[%q]", s.Key)
		}
	}
	return b.String()
}

func gjsonEscape(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return r.Replace(key)
}

func leafString(r gjson.Result) string {
	if r.IsArray() || r.IsObject() {
		return r.Raw
	}
	return r.String()
}

// normalizeMapShorthand rewrites Stellar-style bare map literals
// ("{k:v,k2:v2}") into valid JSON ("{\"k\":\"v\",\"k2\":\"v2\"}") when the
// declared kind names a map and the raw value is not already valid JSON.
// Numeric, boolean, and null-looking values are left unquoted.
func normalizeMapShorthand(raw, kind string) string {
	if gjson.Valid(raw) {
		return raw
	}
	if !strings.Contains(strings.ToLower(kind), "map") {
		return raw
	}
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "{") || !strings.HasSuffix(trimmed, "}") {
		return raw
	}
	inner := trimmed[1 : len(trimmed)-1]
	entries := splitTopLevel(inner, ',')
	var b strings.Builder
	b.WriteByte('{')
	for i, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := splitTopLevel(entry, ':')
		if len(parts) != 2 {
			continue
		}
		k := strings.Trim(strings.TrimSpace(parts[0]), `"'`)
		v := strings.TrimSpace(parts[1])
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(k, `"`, `\"`))
		b.WriteString(`":`)
		b.WriteString(normalizeShorthandValue(v))
	}
	b.WriteByte('}')
	return b.String()
}

func normalizeShorthandValue(v string) string {
	if v == "" {
		return `""`
	}
	if strings.HasPrefix(v, `"`) && strings.HasSuffix(v, `"`) {
		return v
	}
	lower := strings.ToLower(v)
	if lower == "true" || lower == "false" || lower == "null" {
		return lower
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		return v
	}
	if strings.HasPrefix(v, "{") || strings.HasPrefix(v, "[") {
		return v
	}
	return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
}

// splitTopLevel splits s on sep, ignoring occurrences nested inside
// brace/bracket/quote groups.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth := 0
	inQuote := false
	var quoteCh byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inQuote:
			if c == quoteCh {
				inQuote = false
			}
		case c == '"' || c == '\'':
			inQuote = true
			quoteCh = c
		case c == '{' || c == '[':
			depth++
		case c == '}' || c == ']':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

// classifyKind recomputes the kind of a traversed leaf: structural kinds
// (map/vec) come from the gjson result's own shape, scalar kinds fall back
// to the declared root kind's numeric/bool family where possible, else a
// generic "string"/"number"/"bool"/"null".
func classifyKind(r gjson.Result, rootKind string) string {
	switch {
	case r.IsArray():
		return "vec"
	case r.IsObject():
		return "map"
	case r.Type == gjson.Number:
		if isNumericKind(rootKind) {
			return rootKind
		}
		return "number"
	case r.Type == gjson.True || r.Type == gjson.False:
		return "bool"
	case r.Type == gjson.Null:
		return "null"
	default:
		if looksLikeAddress(r.String()) {
			return "address"
		}
		return "string"
	}
}

func isNumericKind(kind string) bool {
	k := strings.ToLower(kind)
	return strings.HasPrefix(k, "u") || strings.HasPrefix(k, "i") || k == "number"
}

func looksLikeAddress(s string) bool {
	return strings.HasPrefix(s, "0x") && len(s) >= 4
}

func evalEquality(op Op, val, kind string, rhs Literal) (bool, error) {
	var eq bool
	switch rhs.Kind {
	case LiteralNull:
		eq = kind == "null" || val == ""
	case LiteralBool:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return false, &TypeMismatchError{Detail: "expected bool, got " + kind}
		}
		eq = b == rhs.Bool
	case LiteralNumber:
		n, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return false, &TypeMismatchError{Detail: "expected number, got " + kind}
		}
		eq = n == rhs.Num
	default:
		eq = normalizeComparable(val, kind) == normalizeComparable(rhs.Str, "")
	}
	if op == OpNe {
		return !eq, nil
	}
	return eq, nil
}

// normalizeComparable applies address normalization (trim, strip internal
// whitespace, lowercase) when the kind indicates an address-like value;
// otherwise trims surrounding whitespace only.
func normalizeComparable(s, kind string) string {
	if strings.Contains(strings.ToLower(kind), "address") || looksLikeAddress(s) {
		s = strings.ToLower(strings.Join(strings.Fields(strings.TrimSpace(s)), ""))
		return s
	}
	return strings.TrimSpace(s)
}

func evalOrdering(op Op, val, kind string, rhs Literal) (bool, error) {
	if rhs.Kind != LiteralNumber {
		return false, &TypeMismatchError{Detail: "ordering operator requires a numeric literal"}
	}
	if !isNumericKind(kind) {
		return false, &TypeMismatchError{Detail: "ordering operator requires a numeric operand, got " + kind}
	}
	lhsNum, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return false, &TypeMismatchError{Detail: "could not parse numeric operand: " + val}
	}
	switch op {
	case OpGt:
		return lhsNum > rhs.Num, nil
	case OpGe:
		return lhsNum >= rhs.Num, nil
	case OpLt:
		return lhsNum < rhs.Num, nil
	case OpLe:
		return lhsNum <= rhs.Num, nil
	default:
		return false, &UnsupportedOperatorError{Op: op, Kind: kind}
	}
}

func evalContains(val, kind string, rhs Literal) (bool, error) {
	switch {
	case strings.Contains(strings.ToLower(kind), "map"):
		if rhs.Kind != LiteralString {
			return false, &TypeMismatchError{Detail: "map contains requires a string key literal"}
		}
		doc := normalizeMapShorthand(val, kind)
		return gjson.Get(doc, gjsonEscape(rhs.Str)).Exists(), nil
	case kind == "vec" || strings.Contains(strings.ToLower(kind), "vec") || strings.HasPrefix(strings.TrimSpace(val), "["):
		if !gjson.Valid(val) {
			return false, &TypeMismatchError{Detail: "vec contains requires a JSON array value"}
		}
		arr := gjson.Parse(val)
		if !arr.IsArray() {
			return false, &TypeMismatchError{Detail: "vec contains requires an array"}
		}
		found := false
		arr.ForEach(func(_, elem gjson.Result) bool {
			if literalMatchesGJSON(rhs, elem) {
				found = true
				return false
			}
			return true
		})
		return found, nil
	default:
		if rhs.Kind != LiteralString {
			return false, &TypeMismatchError{Detail: "string contains requires a string literal"}
		}
		return strings.Contains(val, rhs.Str), nil
	}
}

func literalMatchesGJSON(lit Literal, r gjson.Result) bool {
	switch lit.Kind {
	case LiteralString:
		return normalizeComparable(r.String(), "") == normalizeComparable(lit.Str, "")
	case LiteralNumber:
		return r.Type == gjson.Number && r.Num == lit.Num
	case LiteralBool:
		return (r.Type == gjson.True && lit.Bool) || (r.Type == gjson.False && !lit.Bool)
	case LiteralNull:
		return r.Type == gjson.Null
	default:
		return false
	}
}

func evalAffix(op Op, val, kind string, rhs Literal) (bool, error) {
	if rhs.Kind != LiteralString {
		return false, &TypeMismatchError{Detail: "startswith/endswith requires a string literal"}
	}
	if isNumericKind(kind) || kind == "bool" || kind == "vec" || kind == "map" {
		return false, &UnsupportedOperatorError{Op: op, Kind: kind}
	}
	if op == OpStartsWith {
		return strings.HasPrefix(val, rhs.Str), nil
	}
	return strings.HasSuffix(val, rhs.Str), nil
}
