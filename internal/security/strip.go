package security

import "strings"

// commentSpan records where a comment sat in the original text so the
// validator can tell a harmless leading/trailing block from mid-statement
// obfuscation.
type commentSpan struct {
	start, end int
}

// stripLiterals removes comments and string literal contents from SQL so
// keyword scanning cannot be defeated by hiding verbs inside strings or
// comments. Comments become a single space; string literals become ''.
// Handles -- and # line comments, /* */ blocks, single-quoted strings
// with '' and backslash escapes, double-quoted and backtick identifiers,
// and PostgreSQL dollar-quoted strings.
func stripLiterals(sql string) (string, []commentSpan) {
	var b strings.Builder
	var comments []commentSpan
	i, n := 0, len(sql)

	for i < n {
		// -- line comment
		if i+1 < n && sql[i] == '-' && sql[i+1] == '-' {
			start := i
			for i < n && sql[i] != '\n' {
				i++
			}
			comments = append(comments, commentSpan{start, i})
			b.WriteByte(' ')
			continue
		}

		// # line comment (MySQL)
		if sql[i] == '#' {
			start := i
			for i < n && sql[i] != '\n' {
				i++
			}
			comments = append(comments, commentSpan{start, i})
			b.WriteByte(' ')
			continue
		}

		// /* block comment */
		if i+1 < n && sql[i] == '/' && sql[i+1] == '*' {
			start := i
			i += 2
			for i+1 < n && !(sql[i] == '*' && sql[i+1] == '/') {
				i++
			}
			i += 2
			if i > n {
				i = n
			}
			comments = append(comments, commentSpan{start, i})
			b.WriteByte(' ')
			continue
		}

		// Dollar-quoted string $tag$...$tag$
		if sql[i] == '$' {
			if tagEnd := strings.Index(sql[i+1:], "$"); tagEnd >= 0 && isDollarTag(sql[i+1:i+1+tagEnd]) {
				tag := sql[i : i+tagEnd+2]
				if closeIdx := strings.Index(sql[i+len(tag):], tag); closeIdx >= 0 {
					i += len(tag) + closeIdx + len(tag)
					b.WriteString("''")
					continue
				}
			}
		}

		// Single-quoted string
		if sql[i] == '\'' {
			i++
			for i < n {
				if sql[i] == '\\' && i+1 < n {
					i += 2
					continue
				}
				if sql[i] == '\'' {
					if i+1 < n && sql[i+1] == '\'' {
						i += 2
						continue
					}
					i++
					break
				}
				i++
			}
			b.WriteString("''")
			continue
		}

		// Quoted identifiers pass through with their quoting kept.
		if sql[i] == '"' || sql[i] == '`' {
			quote := sql[i]
			b.WriteByte(quote)
			i++
			for i < n {
				if sql[i] == quote {
					b.WriteByte(quote)
					i++
					break
				}
				b.WriteByte(sql[i])
				i++
			}
			continue
		}

		b.WriteByte(sql[i])
		i++
	}

	return b.String(), comments
}

func isDollarTag(tag string) bool {
	for i := 0; i < len(tag); i++ {
		c := tag[i]
		if !(c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// interiorComments returns the comments that are neither a single leading
// block nor a single trailing block in the raw text. Those are the ones
// the stacking and obfuscation rules care about.
func interiorComments(sql string, spans []commentSpan) []commentSpan {
	var interior []commentSpan
	for _, s := range spans {
		if strings.TrimSpace(sql[:s.start]) == "" {
			continue // leading
		}
		if strings.TrimSpace(sql[s.end:]) == "" {
			continue // trailing
		}
		interior = append(interior, s)
	}
	return interior
}
