package summarizer

import (
	"strings"
	"unicode"

	"docchat/internal/domain"
)

type section int

const (
	sectionNone section = iota
	sectionSummary
	sectionTerms
)

// Parse reads generator output of the form
//
//	SUMMARY:
//	paragraph
//
//	TERMS:
//	- term: explanation
//
// Markdown emphasis and numbered bullets are tolerated. Text before any
// header counts as the synopsis when no SUMMARY header is present. At most
// maxTerms distinct terms are kept.
func Parse(out string, maxTerms int) (domain.Summary, error) {
	var (
		cur      = sectionNone
		preamble []string
		synopsis []string
		terms    []domain.KeyTerm
		seen     = map[string]bool{}
		found    bool
	)
	for _, raw := range strings.Split(out, "\n") {
		line := cleanLine(raw)
		if line == "" {
			continue
		}
		if rest, ok := header(line, "SUMMARY", "SYNOPSIS"); ok {
			cur, found = sectionSummary, true
			if rest != "" {
				synopsis = append(synopsis, rest)
			}
			continue
		}
		if _, ok := header(line, "TERMS", "KEY TERMS"); ok {
			cur = sectionTerms
			continue
		}
		switch cur {
		case sectionNone:
			preamble = append(preamble, line)
		case sectionSummary:
			synopsis = append(synopsis, line)
		case sectionTerms:
			kt, ok := parseTerm(line)
			if !ok || len(terms) >= maxTerms || seen[strings.ToLower(kt.Term)] {
				continue
			}
			seen[strings.ToLower(kt.Term)] = true
			terms = append(terms, kt)
		}
	}
	if !found {
		synopsis = preamble
	}
	text := strings.TrimSpace(strings.Join(synopsis, " "))
	if text == "" {
		return domain.Summary{}, ErrUnparseable
	}
	if terms == nil {
		terms = []domain.KeyTerm{}
	}
	return domain.Summary{Synopsis: text, KeyTerms: terms}, nil
}

func cleanLine(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "**", "")
	s = strings.TrimLeft(s, "# ")
	return strings.TrimSpace(s)
}

// header matches "NAME:" lines case-insensitively and returns what follows the colon.
func header(line string, names ...string) (string, bool) {
	upper := strings.ToUpper(line)
	for _, n := range names {
		if strings.HasPrefix(upper, n+":") {
			return strings.TrimSpace(line[len(n)+1:]), true
		}
	}
	return "", false
}

func parseTerm(line string) (domain.KeyTerm, bool) {
	line = stripBullet(line)
	term, explanation, ok := strings.Cut(line, ":")
	if !ok {
		for _, sep := range []string{" - ", " – ", " — "} {
			if term, explanation, ok = strings.Cut(line, sep); ok {
				break
			}
		}
	}
	term = strings.Trim(strings.TrimSpace(term), `"'*`)
	explanation = strings.TrimSpace(explanation)
	if !ok || term == "" || explanation == "" {
		return domain.KeyTerm{}, false
	}
	return domain.KeyTerm{Term: term, Explanation: explanation}, true
}

func stripBullet(line string) string {
	switch {
	case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "), strings.HasPrefix(line, "• "):
		_, rest, _ := strings.Cut(line, " ")
		return strings.TrimSpace(rest)
	}
	i := 0
	for i < len(line) && unicode.IsDigit(rune(line[i])) {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return strings.TrimSpace(line[i+1:])
	}
	return line
}
