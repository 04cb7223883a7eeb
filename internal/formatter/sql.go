package formatter

import (
	"fmt"
	"strings"
	"unicode"
)

type sqlKind int

const (
	sqlWord sqlKind = iota
	sqlNumber
	sqlString
	sqlQuoted
	sqlLineComment
	sqlBlockComment
	sqlPunct
)

type sqlToken struct {
	kind        sqlKind
	text        string
	spaceBefore bool
}

// sqlStatements are the verbs a query may start with.
var sqlStatements = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true, "CREATE": true,
	"DROP": true, "ALTER": true, "WITH": true, "MERGE": true,
}

// sqlClauses start a new line with their body indented below.
var sqlClauses = map[string]bool{
	"SELECT": true, "SELECT DISTINCT": true, "FROM": true, "WHERE": true,
	"GROUP BY": true, "ORDER BY": true, "HAVING": true, "LIMIT": true, "OFFSET": true,
	"SET": true, "VALUES": true, "RETURNING": true, "WITH": true,
	"INSERT INTO": true, "UPDATE": true, "DELETE FROM": true,
}

// sqlJoins start a new line inside the FROM body.
var sqlJoins = map[string]bool{
	"JOIN": true, "INNER JOIN": true, "LEFT JOIN": true, "RIGHT JOIN": true,
	"FULL JOIN": true, "CROSS JOIN": true, "LEFT OUTER JOIN": true,
	"RIGHT OUTER JOIN": true, "FULL OUTER JOIN": true,
}

// sqlSetOps sit alone on their line between queries.
var sqlSetOps = map[string]bool{
	"UNION": true, "UNION ALL": true, "INTERSECT": true, "EXCEPT": true,
}

var sqlKeywords = func() map[string]bool {
	words := strings.Fields(`
		ADD ALL ALTER AND ANY AS ASC AVG BEGIN BETWEEN BY CASCADE CASE CAST CHECK
		COALESCE COLUMN COMMIT CONSTRAINT COUNT CREATE CROSS CURRENT_DATE
		CURRENT_TIMESTAMP DATABASE DEFAULT DELETE DESC DISTINCT DROP ELSE END
		EXCEPT EXISTS FALSE FETCH FIRST FOREIGN FROM FULL GROUP HAVING IF ILIKE IN
		INDEX INNER INSERT INTERSECT INTO IS JOIN KEY LEFT LIKE LIMIT LOWER MATCHED
		MAX MERGE MIN NOT NOW NULL OFFSET ON OR ORDER OUTER OVER PARTITION PRIMARY
		REFERENCES RETURNING RIGHT ROLLBACK ROWS SELECT SET SUM TABLE THEN TRUE
		TRUNCATE UNION UNIQUE UPDATE UPPER USING VALUES VIEW WHEN WHERE WITH
		INT INTEGER BIGINT SMALLINT TEXT VARCHAR CHAR BOOLEAN DATE TIMESTAMP
		NUMERIC DECIMAL SERIAL`)
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}()

// FormatSQL upper-cases keywords and lays out one clause per line with
// two-space indented bodies. The query must start with a statement verb.
func FormatSQL(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", ErrEmptyInput
	}

	tokens, err := tokenizeSQL(input)
	if err != nil {
		return "", err
	}

	first := firstSQLWord(tokens)
	if !sqlStatements[first] {
		return "", fmt.Errorf("%w: query must start with one of SELECT, INSERT, UPDATE, DELETE, CREATE, DROP, ALTER, WITH, MERGE", ErrInvalidSQL)
	}

	return layoutSQL(tokens), nil
}

func firstSQLWord(tokens []sqlToken) string {
	for _, t := range tokens {
		switch t.kind {
		case sqlLineComment, sqlBlockComment:
			continue
		case sqlWord:
			return strings.ToUpper(t.text)
		default:
			return ""
		}
	}
	return ""
}

func tokenizeSQL(s string) ([]sqlToken, error) {
	var tokens []sqlToken
	runes := []rune(s)
	space := false
	depth := 0

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			space = true
			i++
			continue

		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			j := i
			for j < len(runes) && runes[j] != '\n' {
				j++
			}
			tokens = append(tokens, sqlToken{kind: sqlLineComment, text: strings.TrimRight(string(runes[i:j]), " \t\r"), spaceBefore: space})
			i = j

		case r == '/' && i+1 < len(runes) && runes[i+1] == '*':
			j := i + 2
			for j+1 < len(runes) && (runes[j] != '*' || runes[j+1] != '/') {
				j++
			}
			if j+1 >= len(runes) {
				return nil, fmt.Errorf("%w: unterminated comment", ErrInvalidSQL)
			}
			tokens = append(tokens, sqlToken{kind: sqlBlockComment, text: string(runes[i : j+2]), spaceBefore: space})
			i = j + 2

		case r == '\'' || r == '"' || r == '`':
			j, ok := scanQuoted(runes, i, r)
			if !ok {
				return nil, fmt.Errorf("%w: unterminated quoted text", ErrInvalidSQL)
			}
			kind := sqlQuoted
			if r == '\'' {
				kind = sqlString
			}
			tokens = append(tokens, sqlToken{kind: kind, text: string(runes[i:j]), spaceBefore: space})
			i = j

		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, sqlToken{kind: sqlNumber, text: string(runes[i:j]), spaceBefore: space})
			i = j

		case unicode.IsLetter(r) || r == '_' || r == '@' || r == '$' || r == ':':
			j := i + 1
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '$') {
				j++
			}
			tokens = append(tokens, sqlToken{kind: sqlWord, text: string(runes[i:j]), spaceBefore: space})
			i = j

		default:
			text := string(r)
			if i+1 < len(runes) {
				switch pair := string(runes[i : i+2]); pair {
				case "<=", ">=", "<>", "!=", "||", "::", "->":
					text = pair
				}
			}
			switch text {
			case "(":
				depth++
			case ")":
				depth--
				if depth < 0 {
					return nil, fmt.Errorf("%w: unbalanced parentheses", ErrInvalidSQL)
				}
			}
			tokens = append(tokens, sqlToken{kind: sqlPunct, text: text, spaceBefore: space})
			i += len([]rune(text))
		}
		space = false
	}

	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced parentheses", ErrInvalidSQL)
	}
	return tokens, nil
}

// scanQuoted returns the index after the closing quote. Doubled quotes escape.
func scanQuoted(runes []rune, start int, quote rune) (int, bool) {
	for j := start + 1; j < len(runes); j++ {
		if runes[j] != quote {
			continue
		}
		if j+1 < len(runes) && runes[j+1] == quote {
			j++
			continue
		}
		return j + 1, true
	}
	return 0, false
}

// sqlWriter accumulates formatted output.
type sqlWriter struct {
	b         strings.Builder
	lineStart bool
	prev      *sqlToken
}

func (w *sqlWriter) newline(level int) {
	if w.lineStart {
		// Replace the pending indentation instead of stacking blank lines.
		pending := strings.TrimRight(w.b.String(), " ")
		w.b.Reset()
		w.b.WriteString(pending)
	} else if w.b.Len() > 0 {
		w.b.WriteString("\n")
	}
	w.b.WriteString(strings.Repeat(indent, level))
	w.lineStart = true
}

func (w *sqlWriter) write(t sqlToken, text string) {
	if !w.lineStart && w.prev != nil && needsSpace(*w.prev, t) {
		w.b.WriteString(" ")
	}
	w.b.WriteString(text)
	w.lineStart = false
	w.prev = &t
}

func needsSpace(prev, cur sqlToken) bool {
	if cur.kind == sqlPunct {
		switch cur.text {
		case ",", ";", ")", ".", "::":
			return false
		case "(":
			return cur.spaceBefore
		}
	}
	if prev.kind == sqlPunct {
		switch prev.text {
		case "(", ".", "::":
			return false
		case ",":
			return true
		}
	}
	if prev.kind == sqlWord && sqlKeywords[strings.ToUpper(prev.text)] {
		return true
	}
	if cur.kind == sqlWord && sqlKeywords[strings.ToUpper(cur.text)] {
		return true
	}
	return cur.spaceBefore
}

// matchPhrase joins up to three consecutive words into a known phrase.
func matchPhrase(tokens []sqlToken, i int, phrases ...map[string]bool) (string, int) {
	best, n := "", 0
	words := make([]string, 0, 3)
	for j := i; j < len(tokens) && j < i+3 && tokens[j].kind == sqlWord; j++ {
		words = append(words, strings.ToUpper(tokens[j].text))
		candidate := strings.Join(words, " ")
		for _, set := range phrases {
			if set[candidate] {
				best, n = candidate, len(words)
			}
		}
	}
	return best, n
}

func layoutSQL(tokens []sqlToken) string {
	w := &sqlWriter{}
	depth := 0
	clause := ""

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]

		if t.kind == sqlWord && depth == 0 {
			if phrase, n := matchPhrase(tokens, i, sqlClauses, sqlJoins, sqlSetOps); n > 0 {
				kw := sqlToken{kind: sqlWord, text: phrase}
				switch {
				case sqlClauses[phrase]:
					w.newline(0)
					w.write(kw, phrase)
					w.newline(1)
					clause = phrase
				case sqlJoins[phrase]:
					w.newline(1)
					w.write(kw, phrase)
				default:
					w.newline(0)
					w.write(kw, phrase)
					clause = ""
				}
				i += n - 1
				continue
			}

			upper := strings.ToUpper(t.text)
			if (upper == "AND" || upper == "OR") && clause != "" && !inBetween(tokens, i) {
				w.newline(1)
				w.write(t, upper)
				continue
			}
		}

		switch t.kind {
		case sqlWord:
			text := t.text
			if sqlKeywords[strings.ToUpper(text)] {
				text = strings.ToUpper(text)
			}
			w.write(t, text)

		case sqlLineComment:
			w.write(t, t.text)
			w.newline(levelFor(clause))

		case sqlPunct:
			switch t.text {
			case "(":
				depth++
				w.write(t, t.text)
			case ")":
				depth--
				w.write(t, t.text)
			case ",":
				w.write(t, t.text)
				if depth == 0 && clause != "" {
					w.newline(1)
				}
			case ";":
				w.write(t, t.text)
				if i < len(tokens)-1 {
					w.b.WriteString("\n")
					w.newline(0)
					clause = ""
				}
			default:
				w.write(t, t.text)
			}

		default:
			w.write(t, t.text)
		}
	}

	return strings.TrimSpace(trimTrailingSpaces(w.b.String()))
}

// inBetween reports whether the AND at i belongs to a BETWEEN x AND y.
func inBetween(tokens []sqlToken, i int) bool {
	for j := i - 1; j >= 0 && j >= i-4; j-- {
		if tokens[j].kind == sqlWord {
			switch strings.ToUpper(tokens[j].text) {
			case "BETWEEN":
				return true
			case "AND", "OR":
				return false
			}
		}
	}
	return false
}

func levelFor(clause string) int {
	if clause == "" {
		return 0
	}
	return 1
}

func trimTrailingSpaces(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " ")
	}
	return strings.Join(lines, "\n")
}
