package mockengine

import (
	"math/rand"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/periplon/metis/internal/apperr"
)

// patternMaxRepeat bounds unbounded quantifiers (*, +, {n,}) so a
// pathological pattern like `a*` can't produce an unbounded string.
const patternMaxRepeat = 16

// generatePattern produces a random string intended to match cfg.Pattern.
// No pack dependency generates strings from a regex (dlclark/regexp2 only
// matches), so this walks the pattern text with a small hand-rolled
// tokenizer covering literals, character classes (\d \w \s and bracket
// classes), groups, alternation, and quantifiers, then verifies the
// result against the compiled pattern so a generator bug never silently
// returns a non-matching string.
func (e *Engine) generatePattern(cfg *MockConfig) (any, error) {
	if cfg.Pattern == "" {
		return nil, &apperr.Validation{Field: "pattern", Reason: "pattern is required"}
	}

	re, err := regexp2.Compile(cfg.Pattern, regexp2.None)
	if err != nil {
		return nil, &apperr.PatternInvalid{Pattern: cfg.Pattern, Reason: err.Error()}
	}

	p := &patternWalker{src: []rune(cfg.Pattern)}
	out, err := p.alternation()
	if err != nil {
		return nil, err
	}
	if p.pos < len(p.src) {
		return nil, &apperr.PatternTooComplex{Pattern: cfg.Pattern}
	}

	if ok, _ := re.MatchString(out); !ok {
		return nil, &apperr.PatternTooComplex{Pattern: cfg.Pattern}
	}
	return out, nil
}

type patternWalker struct {
	src []rune
	pos int
}

func (p *patternWalker) peek() (rune, bool) {
	if p.pos >= len(p.src) {
		return 0, false
	}
	return p.src[p.pos], true
}

func (p *patternWalker) next() (rune, bool) {
	r, ok := p.peek()
	if ok {
		p.pos++
	}
	return r, ok
}

// alternation := concat ('|' concat)*
func (p *patternWalker) alternation() (string, error) {
	branches := []string{}
	cur, err := p.concat()
	if err != nil {
		return "", err
	}
	branches = append(branches, cur)
	for {
		r, ok := p.peek()
		if !ok || r != '|' {
			break
		}
		p.pos++
		cur, err = p.concat()
		if err != nil {
			return "", err
		}
		branches = append(branches, cur)
	}
	return branches[rand.Intn(len(branches))], nil
}

// concat := quantified*, stopping at '|' or ')'
func (p *patternWalker) concat() (string, error) {
	var b strings.Builder
	for {
		r, ok := p.peek()
		if !ok || r == '|' || r == ')' {
			break
		}
		atom, err := p.atom()
		if err != nil {
			return "", err
		}
		count, err := p.quantifier()
		if err != nil {
			return "", err
		}
		for i := 0; i < count; i++ {
			b.WriteString(atom)
		}
	}
	return b.String(), nil
}

// atom is a single literal, escape, class, or parenthesized group.
func (p *patternWalker) atom() (string, error) {
	r, ok := p.next()
	if !ok {
		return "", &apperr.PatternInvalid{Reason: "unexpected end of pattern"}
	}
	switch r {
	case '(':
		if rest, ok2 := p.peek(); ok2 && rest == '?' {
			// non-capturing / named group prefix `?:`, `?<name>` — skip to `:` or `>`
			for {
				c, ok3 := p.next()
				if !ok3 {
					return "", &apperr.PatternInvalid{Reason: "unterminated group"}
				}
				if c == ':' || c == '>' {
					break
				}
			}
		}
		inner, err := p.alternation()
		if err != nil {
			return "", err
		}
		if c, ok2 := p.next(); !ok2 || c != ')' {
			return "", &apperr.PatternInvalid{Reason: "unterminated group"}
		}
		return inner, nil
	case '[':
		return p.class()
	case '.':
		return randomPrintable(), nil
	case '^', '$':
		return "", nil
	case '\\':
		e, ok2 := p.next()
		if !ok2 {
			return "", &apperr.PatternInvalid{Reason: "dangling escape"}
		}
		return escapeClass(e), nil
	default:
		return string(r), nil
	}
}

// quantifier consumes an optional ?, *, +, or {m,n} suffix and returns a
// bounded repeat count (1 if no quantifier is present).
func (p *patternWalker) quantifier() (int, error) {
	r, ok := p.peek()
	if !ok {
		return 1, nil
	}
	switch r {
	case '?':
		p.pos++
		p.skipLazy()
		return rand.Intn(2), nil
	case '*':
		p.pos++
		p.skipLazy()
		return rand.Intn(patternMaxRepeat + 1), nil
	case '+':
		p.pos++
		p.skipLazy()
		return 1 + rand.Intn(patternMaxRepeat), nil
	case '{':
		start := p.pos
		p.pos++
		var spec strings.Builder
		for {
			c, ok2 := p.next()
			if !ok2 {
				p.pos = start
				return 1, nil
			}
			if c == '}' {
				break
			}
			spec.WriteRune(c)
		}
		p.skipLazy()
		m, n := parseRepeatSpec(spec.String())
		if n < 0 || n > patternMaxRepeat {
			n = patternMaxRepeat
		}
		if m > n {
			m = n
		}
		if m == n {
			return m, nil
		}
		return m + rand.Intn(n-m+1), nil
	default:
		return 1, nil
	}
}

func (p *patternWalker) skipLazy() {
	if r, ok := p.peek(); ok && r == '?' {
		p.pos++
	}
}

func parseRepeatSpec(spec string) (int, int) {
	a, b, hasComma := strings.Cut(spec, ",")
	m, _ := strconv.Atoi(strings.TrimSpace(a))
	if !hasComma {
		return m, m
	}
	b = strings.TrimSpace(b)
	if b == "" {
		return m, -1
	}
	n, _ := strconv.Atoi(b)
	return m, n
}

// class parses a bracket expression `[...]` and returns one random
// matching character.
func (p *patternWalker) class() (string, error) {
	negate := false
	if r, ok := p.peek(); ok && r == '^' {
		negate = true
		p.pos++
	}
	var chars []rune
	for {
		r, ok := p.next()
		if !ok {
			return "", &apperr.PatternInvalid{Reason: "unterminated character class"}
		}
		if r == ']' {
			break
		}
		if r == '\\' {
			e, ok2 := p.next()
			if !ok2 {
				return "", &apperr.PatternInvalid{Reason: "dangling escape in class"}
			}
			chars = append(chars, []rune(escapeClass(e))...)
			continue
		}
		if next, ok2 := p.peek(); ok2 && next == '-' {
			save := p.pos
			p.pos++
			if hi, ok3 := p.next(); ok3 && hi != ']' {
				for c := r; c <= hi; c++ {
					chars = append(chars, c)
				}
				continue
			}
			p.pos = save
		}
		chars = append(chars, r)
	}
	if negate || len(chars) == 0 {
		return randomPrintable(), nil
	}
	return string(chars[rand.Intn(len(chars))]), nil
}

func escapeClass(e rune) string {
	switch e {
	case 'd':
		return strconv.Itoa(rand.Intn(10))
	case 'w':
		const alnum = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_"
		return string(alnum[rand.Intn(len(alnum))])
	case 's':
		return " "
	case 'n':
		return "\n"
	case 't':
		return "\t"
	default:
		return string(e)
	}
}

func randomPrintable() string {
	const printable = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	return string(printable[rand.Intn(len(printable))])
}
