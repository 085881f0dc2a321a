// Package shellformat normalizes shell one-liners for display. Commands are
// parsed with mvdan.cc/sh/v3/syntax (the shfmt parser) and reprinted with
// consistent spacing and backslash continuations, so what operators see in
// reports is valid shell they can copy-paste.
package shellformat

import (
	"bytes"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// Format reformats a shell command. Input that does not parse is returned
// unchanged; display should never fail because a probe command is odd.
func Format(cmd string) string {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(true))
	prog, err := parser.Parse(strings.NewReader(cmd), "")
	if err != nil {
		return cmd
	}

	printer := syntax.NewPrinter(
		syntax.Indent(2),
		syntax.BinaryNextLine(true),
	)
	var buf bytes.Buffer
	if err := printer.Print(&buf, prog); err != nil {
		return cmd
	}
	return strings.TrimRight(buf.String(), "\n")
}
