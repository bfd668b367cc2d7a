package lock

import (
	"fmt"
	"strings"
)

// Resource renders a lock-name template with call-time arguments.
//
// Placeholders use the form {name} and are substituted with the fmt
// rendering of args[name]. Literal braces are escaped by doubling ({{ and
// }}). Rendering is deterministic: equal templates and argument values
// always produce equal keys, which mutual exclusion correctness depends on.
//
// A placeholder without a matching argument, an unterminated placeholder,
// and a stray closing brace all fail with ErrFormat.
func Resource(template string, args map[string]any) (string, error) {
	var b strings.Builder

	b.Grow(len(template))

	for i := 0; i < len(template); {
		switch template[i] {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				b.WriteByte('{')

				i += 2

				continue
			}

			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unterminated placeholder in %q", ErrFormat, template)
			}

			name := template[i+1 : i+1+end]

			value, ok := args[name]
			if !ok {
				return "", fmt.Errorf("%w: template %q has no argument %q", ErrFormat, template, name)
			}

			fmt.Fprint(&b, value)

			i += end + 2
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				b.WriteByte('}')

				i += 2

				continue
			}

			return "", fmt.Errorf("%w: unmatched %q in %q", ErrFormat, "}", template)
		default:
			b.WriteByte(template[i])

			i++
		}
	}

	return b.String(), nil
}
