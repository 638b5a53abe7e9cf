package filter

import "strings"

// NormalizeSignature reduces a signature string to a canonical comparable
// form: all whitespace stripped, lowercased. "foo(Address, U32)" and
// "FOO ( address , u32 )" both normalize to "foo(address,u32)" (spec §4.5).
func NormalizeSignature(sig string) string {
	var b strings.Builder
	for _, r := range sig {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}

// NormalizeAddress reduces an address string to a canonical comparable
// form: trimmed, internal whitespace removed, lowercased (spec §4.5).
func NormalizeAddress(addr string) string {
	trimmed := strings.TrimSpace(addr)
	return strings.ToLower(strings.Join(strings.Fields(trimmed), ""))
}
