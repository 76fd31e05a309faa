// Package lemma parses and prints the engine's .ksummary lemma files.
package lemma

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Lemma is a single accepted validity-core lemma: a path identifier and the
// ordered set of path-constraint expressions (each already rendered by the
// expression algebra's String method) that justified it.
//
// The expression algebra (C5) exposes String() but no parser, so round-trip
// equality here means "prints back to the identical text it was parsed
// from," not "reconstructs an Expr AST." A future parser could upgrade
// Constraints to []bisym.Expr without changing this format.
type Lemma struct {
	Path        string
	Constraints []string
}

// Print renders lemmas in .ksummary format.
func Print(w io.Writer, lemmas []Lemma) error {
	for _, l := range lemmas {
		if _, err := fmt.Fprintf(w, "lemma %s\n", l.Path); err != nil {
			return err
		}
		for _, c := range l.Constraints {
			if _, err := fmt.Fprintf(w, "\t%s\n", c); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w, "end"); err != nil {
			return err
		}
	}
	return nil
}

// Parse reads a sequence of lemma declarations from r.
func Parse(r io.Reader) ([]Lemma, error) {
	var lemmas []Lemma
	var cur *Lemma

	scanner := bufio.NewScanner(r)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "lemma "):
			if cur != nil {
				return nil, fmt.Errorf("lemma: line %d: nested lemma before end", lineNo)
			}
			cur = &Lemma{Path: strings.TrimSpace(strings.TrimPrefix(trimmed, "lemma "))}
		case trimmed == "end":
			if cur == nil {
				return nil, fmt.Errorf("lemma: line %d: end without lemma", lineNo)
			}
			lemmas = append(lemmas, *cur)
			cur = nil
		default:
			if cur == nil {
				return nil, fmt.Errorf("lemma: line %d: constraint outside lemma", lineNo)
			}
			cur.Constraints = append(cur.Constraints, trimmed)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if cur != nil {
		return nil, fmt.Errorf("lemma: unterminated lemma %q", cur.Path)
	}
	return lemmas, nil
}
