package trigger

import "strings"

// Render replaces every "${key}" occurrence in tmpl with vars[key]; a key
// absent from vars is left as the literal placeholder text (spec §4.9:
// "unresolved placeholders are left literally").
func Render(tmpl string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		if tmpl[i] == '$' && i+1 < len(tmpl) && tmpl[i+1] == '{' {
			end := strings.IndexByte(tmpl[i+2:], '}')
			if end >= 0 {
				key := tmpl[i+2 : i+2+end]
				if value, ok := vars[key]; ok {
					b.WriteString(value)
				} else {
					b.WriteString(tmpl[i : i+2+end+1])
				}
				i += 2 + end + 1
				continue
			}
		}
		b.WriteByte(tmpl[i])
		i++
	}
	return b.String()
}
