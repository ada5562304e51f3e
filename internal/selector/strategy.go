// internal/selector/strategy.go
package selector

import (
	"context"
	"fmt"
	"strings"

	"github.com/hffmnnj/nano-banana-cli/api/schemas"
)

// Strategy is one way of locating the candidates for a logical target. It is
// stateless; its only identity is its position in a Target's list.
type Strategy struct {
	Description string
	Resolve     func(ctx context.Context, scope schemas.Page) ([]schemas.ElementHandle, error)
}

// Target is a named logical UI role mapped to an ordered list of strategies,
// most specific first.
type Target struct {
	Name       string
	Strategies []Strategy
}

// String returns a human-readable name for error messages.
func (t Target) String() string {
	return strings.ReplaceAll(t.Name, "_", " ")
}

// Query wraps a single driver descriptor.
func Query(d schemas.Descriptor) Strategy {
	return Strategy{
		Description: d.String(),
		Resolve: func(ctx context.Context, scope schemas.Page) ([]schemas.ElementHandle, error) {
			return scope.QueryAll(ctx, d)
		},
	}
}

// CSS matches a CSS selector.
func CSS(query string) Strategy { return Query(schemas.CSS(query)) }

// XPath matches an XPath expression.
func XPath(query string) Strategy { return Query(schemas.XPath(query)) }

// Text matches the innermost elements of the given tag ("*" for any) whose
// normalized text contains text. Matching on visible wording is the broadest fallback.
func Text(tag, text string) Strategy {
	if tag == "" {
		tag = "*"
	}
	cond := fmt.Sprintf("contains(normalize-space(.), %s)", xpathLiteral(text))
	s := XPath(fmt.Sprintf("//%s[%s][not(.//%s[%s])]", tag, cond, tag, cond))
	s.Description = fmt.Sprintf("text:%s|%s", tag, text)
	return s
}

// ExactText matches elements of the given tag whose normalized text equals text.
func ExactText(tag, text string) Strategy {
	if tag == "" {
		tag = "*"
	}
	s := XPath(fmt.Sprintf("//%s[normalize-space(.)=%s]", tag, xpathLiteral(text)))
	s.Description = fmt.Sprintf("text=%s|%s", tag, text)
	return s
}

// ParseStrategy builds a strategy from its configuration form:
//
//	css:<selector>
//	xpath:<expression>
//	text:<tag>|<text>   (or text:<text> for any tag)
//
// A value without a recognized prefix is treated as CSS.
func ParseStrategy(raw string) (Strategy, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Strategy{}, fmt.Errorf("empty selector strategy")
	}
	kind, rest, found := strings.Cut(raw, ":")
	if !found {
		return CSS(raw), nil
	}
	rest = strings.TrimSpace(rest)
	switch strings.ToLower(kind) {
	case "css":
		if rest == "" {
			return Strategy{}, fmt.Errorf("selector strategy %q has an empty css selector", raw)
		}
		return CSS(rest), nil
	case "xpath":
		if rest == "" {
			return Strategy{}, fmt.Errorf("selector strategy %q has an empty xpath expression", raw)
		}
		return XPath(rest), nil
	case "text":
		tag, text, hasTag := strings.Cut(rest, "|")
		if !hasTag {
			tag, text = "*", rest
		}
		if strings.TrimSpace(text) == "" {
			return Strategy{}, fmt.Errorf("selector strategy %q has no text to match", raw)
		}
		return Text(strings.TrimSpace(tag), strings.TrimSpace(text)), nil
	default:
		// Pseudo-classes such as "button:has(...)" also contain a colon.
		return CSS(raw), nil
	}
}

// xpathLiteral quotes s as an XPath 1.0 string literal.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		quoted = append(quoted, `"`+part+`"`)
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
