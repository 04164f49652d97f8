package adapter

import (
	"strconv"
	"strings"

	"github.com/leapstack-labs/atlas/pkg/core"
)

// Binder turns a statement written with %s or %(name)s placeholders into
// PostgreSQL $n form plus its ordered arguments. Values never enter the
// statement text.
type Binder interface {
	Bind(stmt string) (string, []any, error)
}

// Args binds positional %s placeholders, in order.
//
// A statement without any %s or %(name)s placeholder is assumed to use
// native $n placeholders and is passed through untouched, so a bare % such
// as the modulo operator needs no escaping there.
type Args []any

// NamedArgs binds %(name)s placeholders. A name used several times maps to
// a single argument.
type NamedArgs map[string]any

// Bind implements Binder.
func (a Args) Bind(stmt string) (string, []any, error) {
	if !usesPyformat(stmt) {
		return stmt, []any(a), nil
	}

	n := 0
	out, err := rewritePlaceholders(stmt,
		func() (string, error) {
			if n >= len(a) {
				return "", core.Validationf("statement has more %%s placeholders than the %d arguments given", len(a))
			}
			n++
			return "$" + strconv.Itoa(n), nil
		},
		func(name string) (string, error) {
			return "", core.Validationf("named placeholder %%(%s)s used with positional arguments", name)
		},
	)
	if err != nil {
		return "", nil, err
	}
	if n != len(a) {
		return "", nil, core.Validationf("statement has %d %%s placeholders but %d arguments were given", n, len(a))
	}
	return out, []any(a), nil
}

// Bind implements Binder.
func (m NamedArgs) Bind(stmt string) (string, []any, error) {
	ordinal := make(map[string]int, len(m))
	args := make([]any, 0, len(m))
	out, err := rewritePlaceholders(stmt,
		func() (string, error) {
			return "", core.Validationf("positional %%s placeholder used with named arguments")
		},
		func(name string) (string, error) {
			if i, ok := ordinal[name]; ok {
				return "$" + strconv.Itoa(i), nil
			}
			v, ok := m[name]
			if !ok {
				return "", core.Validationf("no value for named parameter %q", name)
			}
			args = append(args, v)
			ordinal[name] = len(args)
			return "$" + strconv.Itoa(len(args)), nil
		},
	)
	if err != nil {
		return "", nil, err
	}
	return out, args, nil
}

// bind applies params to stmt. A nil binder leaves the statement untouched.
func bind(stmt string, params Binder) (string, []any, error) {
	if params == nil {
		return stmt, nil, nil
	}
	return params.Bind(stmt)
}

// usesPyformat reports whether stmt has a %s or %(name)s placeholder
// outside of string literals, quoted identifiers and comments.
func usesPyformat(stmt string) bool {
	for i := 0; i < len(stmt); {
		if end := skipInert(stmt, i); end > i {
			i = end
			continue
		}
		if stmt[i] == '%' && i+1 < len(stmt) {
			switch stmt[i+1] {
			case 's', '(':
				return true
			case '%':
				i += 2
				continue
			}
		}
		i++
	}
	return false
}

// rewritePlaceholders walks stmt and replaces %s and %(name)s outside of
// string literals, quoted identifiers and comments. %% becomes a literal %.
func rewritePlaceholders(stmt string, positional func() (string, error), named func(string) (string, error)) (string, error) {
	var b strings.Builder
	b.Grow(len(stmt))

	for i := 0; i < len(stmt); {
		if end := skipInert(stmt, i); end > i {
			b.WriteString(stmt[i:end])
			i = end
			continue
		}
		if stmt[i] != '%' {
			b.WriteByte(stmt[i])
			i++
			continue
		}
		repl, width, err := placeholder(stmt[i:], positional, named)
		if err != nil {
			return "", err
		}
		b.WriteString(repl)
		i += width
	}
	return b.String(), nil
}

// skipInert returns the index just past the literal, quoted identifier or
// comment starting at i, or i itself when none starts there.
func skipInert(stmt string, i int) int {
	switch c := stmt[i]; {
	case c == '\'' || c == '"':
		return skipQuoted(stmt, i, c)
	case c == '-' && strings.HasPrefix(stmt[i:], "--"):
		if end := strings.IndexByte(stmt[i:], '\n'); end >= 0 {
			return i + end
		}
		return len(stmt)
	case c == '/' && strings.HasPrefix(stmt[i:], "/*"):
		if end := strings.Index(stmt[i+2:], "*/"); end >= 0 {
			return i + 2 + end + 2
		}
		return len(stmt)
	}
	return i
}

// skipQuoted returns the index just past the quoted run starting at start.
// A doubled quote character is an escaped quote.
func skipQuoted(stmt string, start int, q byte) int {
	for i := start + 1; i < len(stmt); i++ {
		if stmt[i] != q {
			continue
		}
		if i+1 < len(stmt) && stmt[i+1] == q {
			i++
			continue
		}
		return i + 1
	}
	return len(stmt)
}

func placeholder(s string, positional func() (string, error), named func(string) (string, error)) (string, int, error) {
	if len(s) < 2 {
		return "", 0, core.Validationf("dangling %% at end of statement; write %%%% for a literal percent")
	}
	switch s[1] {
	case '%':
		return "%", 2, nil
	case 's':
		repl, err := positional()
		return repl, 2, err
	case '(':
		end := strings.IndexByte(s, ')')
		if end < 0 || end+1 >= len(s) || s[end+1] != 's' {
			return "", 0, core.Validationf("malformed named placeholder near %q", truncate(s, 24))
		}
		name := s[2:end]
		if name == "" {
			return "", 0, core.Validationf("named placeholder has an empty name")
		}
		repl, err := named(name)
		return repl, end + 2, err
	default:
		return "", 0, core.Validationf("unsupported placeholder %q; write %%%% for a literal percent", s[:2])
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
