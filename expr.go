package main

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/dop251/goja"
)

// expressionRe accepts "4" in the operator slot on purpose: Tesseract reads
// the rendered "+" as "4" often enough that rejecting it here would leave
// the confusion table nothing to fix.
var expressionRe = regexp.MustCompile(`[0-9]+[4+\-][0-9]+`)

// Confusion is one known OCR misreading: Glyph found at one of Positions
// is rewritten to Replacement before evaluation.
type Confusion struct {
	Glyph       string              `yaml:"glyph"`
	Replacement string              `yaml:"replacement"`
	Positions   []ConfusionPosition `yaml:"positions"`
}

// ConfusionPosition is an index relative to len(expr)/2. EvenOnly
// positions are only checked for even-length expressions.
type ConfusionPosition struct {
	Offset   int  `yaml:"offset"`
	EvenOnly bool `yaml:"even_only"`
}

// defaultConfusions is the "+" read as "4" rule: the midpoint, then for
// even lengths the character right after it. This assumes the operator
// renders near the horizontal centre, which holds for the one- and
// two-digit operands the portal issues.
func defaultConfusions() []Confusion {
	return []Confusion{{
		Glyph:       "4",
		Replacement: "+",
		Positions: []ConfusionPosition{
			{Offset: 0},
			{Offset: 1, EvenOnly: true},
		},
	}}
}

func (c Confusion) validate() error {
	if len(c.Glyph) != 1 || len(c.Replacement) != 1 {
		return fmt.Errorf("confusion glyph and replacement must be single characters, got %q -> %q", c.Glyph, c.Replacement)
	}
	if !isExpressionChar(c.Replacement[0]) {
		return fmt.Errorf("confusion replacement %q is not a digit or operator", c.Replacement)
	}
	if len(c.Positions) == 0 {
		return fmt.Errorf("confusion %q -> %q has no positions", c.Glyph, c.Replacement)
	}
	return nil
}

// extractExpression returns the first digit-operator-digit run in the OCR
// text. Whitespace is removed first since Tesseract sometimes splits glyphs.
func extractExpression(text string) (string, bool) {
	compact := strings.Join(strings.Fields(text), "")
	m := expressionRe.FindString(compact)
	return m, m != ""
}

// correctExpression applies the first confusion that matches, once.
func correctExpression(expr string, table []Confusion) string {
	mid := len(expr) / 2
	for _, c := range table {
		if len(c.Glyph) != 1 || len(c.Replacement) != 1 {
			continue
		}
		for _, p := range c.Positions {
			if p.EvenOnly && len(expr)%2 != 0 {
				continue
			}
			i := mid + p.Offset
			if i < 0 || i >= len(expr) {
				continue
			}
			if expr[i] == c.Glyph[0] {
				return expr[:i] + c.Replacement + expr[i+1:]
			}
		}
	}
	return expr
}

// evaluateExpression computes an arithmetic expression made only of digits
// and +/- operators. Anything that is not a finite integer is an error.
func evaluateExpression(expr string) (int, error) {
	if expr == "" {
		return 0, fmt.Errorf("empty expression")
	}
	for i := 0; i < len(expr); i++ {
		if !isExpressionChar(expr[i]) {
			return 0, fmt.Errorf("unexpected character %q in %q", expr[i], expr)
		}
	}

	vm := goja.New()
	v, err := vm.RunString(`"use strict"; ` + expr)
	if err != nil {
		return 0, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	f := v.ToFloat()
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, fmt.Errorf("evaluate %q: result %v is not an integer", expr, v)
	}
	return int(f), nil
}

func isExpressionChar(b byte) bool {
	return (b >= '0' && b <= '9') || b == '+' || b == '-'
}
