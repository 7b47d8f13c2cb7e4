// Package sql provides the text-level repair and checks applied to oracle-generated SQL.
package sql

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ekaya-inc/insights-engine/pkg/apperrors"
)

// DefaultRowLimit is appended to statements that carry no explicit limit.
const DefaultRowLimit = 100

var (
	// Markdown fences with an optional language tag.
	fencePattern = regexp.MustCompile("(?i)```[ \t]*(?:sql|postgresql|postgres|pgsql)?[ \t]*\r?\n?")

	// A complete fenced block; the body is captured lazily up to the next fence.
	fencedBlockPattern = regexp.MustCompile("(?is)```[ \t]*(?:sql|postgresql|postgres|pgsql)?[ \t]*\r?\n?(.*?)```")

	selectPattern = regexp.MustCompile(`(?i)\bSELECT\b`)

	// Tokens that may legitimately follow a spurious semicolon inside one statement.
	continuationPattern = regexp.MustCompile(`(?i)^(?:\)|(?:LIMIT|ORDER\s+BY|GROUP\s+BY|HAVING|WHERE|FROM|JOIN|LEFT|RIGHT|INNER|OUTER|FULL|CROSS|ON|AND|OR|UNION|INTERSECT|EXCEPT|OFFSET|FETCH|WINDOW)\b)`)

	rowLimitPattern = regexp.MustCompile(`(?i)\bLIMIT\b|\bFETCH\s+(?:FIRST|NEXT)\b`)
)

// Clean extracts a single executable SELECT statement from raw oracle output.
//
// The steps are, in order:
//  1. keep only the body of the first closed code fence that contains SELECT, otherwise
//     strip stray fence markers
//  2. start at the first SELECT keyword
//  3. drop semicolons that precede a continuation clause (LIMIT, ORDER BY, GROUP BY,
//     HAVING, WHERE, ...) and cut at the first semicolon that ends the statement
//  4. reject anything that does not start with SELECT
//  5. append LIMIT when the statement has no row limit
//
// Semicolons inside string literals, quoted identifiers and comments are left alone.
// Errors wrap apperrors.ErrValidation.
func Clean(raw string, rowLimit int) (string, error) {
	if rowLimit <= 0 {
		rowLimit = DefaultRowLimit
	}

	text := strings.TrimSpace(fencePattern.ReplaceAllString(fencedBody(raw), ""))

	loc := selectPattern.FindStringIndex(text)
	if loc == nil {
		return "", fmt.Errorf("%w: no SELECT statement found in generated text", apperrors.ErrValidation)
	}
	text = strings.TrimSpace(repairTerminators(text[loc[0]:]))

	if !IsSelectOnly(text) {
		return "", fmt.Errorf("%w: query must start with SELECT", apperrors.ErrValidation)
	}

	if !HasRowLimit(text) {
		text = appendLimit(text, rowLimit)
	}
	return text, nil
}

// IsSelectOnly reports whether the statement lexically starts with SELECT, ignoring
// case and surrounding whitespace. It is a boundary guard, not a parser.
func IsSelectOnly(sqlQuery string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(sqlQuery)), "SELECT")
}

// HasRowLimit reports whether LIMIT or FETCH FIRST/NEXT appears outside literals and comments.
func HasRowLimit(sqlQuery string) bool {
	return rowLimitPattern.MatchString(maskNonCode(sqlQuery))
}

// fencedBody returns the body of the first closed fenced block containing SELECT,
// or raw unchanged when there is none. Prose around the block is dropped.
func fencedBody(raw string) string {
	for _, m := range fencedBlockPattern.FindAllStringSubmatch(raw, -1) {
		if selectPattern.MatchString(m[1]) {
			return m[1]
		}
	}
	return raw
}

func repairTerminators(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	last := 0
	end := len(s)
	walkCode(s, func(i int) bool {
		// Bytes before last were already consumed by a previous repair.
		if s[i] != ';' || i < last {
			return true
		}
		rest := strings.TrimLeft(s[i+1:], " \t\r\n;")
		if continuationPattern.MatchString(rest) {
			b.WriteString(strings.TrimRight(s[last:i], " \t\r\n"))
			b.WriteByte(' ')
			last = len(s) - len(rest)
			return true
		}
		end = i
		return false
	})

	if last < end {
		b.WriteString(s[last:end])
	}
	return b.String()
}

func appendLimit(s string, limit int) string {
	clause := "LIMIT " + strconv.Itoa(limit)
	if walkCode(s, func(int) bool { return true }) == stateLineComment {
		return s + "\n" + clause
	}
	return s + " " + clause
}

// maskNonCode blanks out literals and comments so keyword searches only see SQL.
func maskNonCode(s string) string {
	masked := []byte(strings.Repeat(" ", len(s)))
	walkCode(s, func(i int) bool {
		masked[i] = s[i]
		return true
	})
	return string(masked)
}

type scanState int

const (
	stateNormal scanState = iota
	stateSingleQuote
	stateEscapeString
	stateDoubleQuote
	stateLineComment
	stateBlockComment
)

// isEscapePrefix reports whether the quote at i opens an E'...' escape string literal,
// the only literal form in which backslash escapes the next character.
func isEscapePrefix(s string, i int) bool {
	if i == 0 || (s[i-1] != 'E' && s[i-1] != 'e') {
		return false
	}
	return i == 1 || !isIdentByte(s[i-2])
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// walkCode calls visit with the byte offset of every character outside string
// literals, quoted identifiers and comments, stopping early when visit returns false.
// It returns the scanner state at the point it stopped.
func walkCode(s string, visit func(i int) bool) scanState {
	state := stateNormal
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch state {
		case stateNormal:
			switch {
			case c == '\'' && isEscapePrefix(s, i):
				state = stateEscapeString
			case c == '\'':
				state = stateSingleQuote
			case c == '"':
				state = stateDoubleQuote
			case c == '-' && i+1 < len(s) && s[i+1] == '-':
				state = stateLineComment
				i++
			case c == '/' && i+1 < len(s) && s[i+1] == '*':
				state = stateBlockComment
				i++
			default:
				if !visit(i) {
					return state
				}
			}
		case stateSingleQuote:
			// Backslash is literal here. A doubled quote ('') exits and immediately
			// re-enters the literal.
			if c == '\'' {
				state = stateNormal
			}
		case stateEscapeString:
			switch {
			case c == '\\':
				i++
			case c == '\'' && i+1 < len(s) && s[i+1] == '\'':
				i++
			case c == '\'':
				state = stateNormal
			}
		case stateDoubleQuote:
			if c == '"' {
				state = stateNormal
			}
		case stateLineComment:
			if c == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if c == '*' && i+1 < len(s) && s[i+1] == '/' {
				state = stateNormal
				i++
			}
		}
	}
	return state
}
