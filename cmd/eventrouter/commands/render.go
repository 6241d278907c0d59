package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/itchyny/gojq"
)

// Renderer prints command output, optionally coloured.
type Renderer struct {
	out     io.Writer
	heading *color.Color
	dim     *color.Color
	good    *color.Color
	bad     *color.Color
}

// NewRenderer returns a renderer writing to out.
func NewRenderer(out io.Writer, noColor bool) *Renderer {
	if noColor {
		color.NoColor = true
	}
	return &Renderer{
		out:     out,
		heading: color.New(color.FgCyan, color.Bold),
		dim:     color.New(color.FgHiBlack),
		good:    color.New(color.FgGreen),
		bad:     color.New(color.FgRed),
	}
}

// Heading prints a bold section title.
func (r *Renderer) Heading(format string, args ...any) {
	fmt.Fprintln(r.out, r.heading.Sprintf(format, args...))
}

// Line prints a plain line.
func (r *Renderer) Line(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

// Dim prints a de-emphasised line.
func (r *Renderer) Dim(format string, args ...any) {
	fmt.Fprintln(r.out, r.dim.Sprintf(format, args...))
}

// Result prints a line in green when ok and in red otherwise.
func (r *Renderer) Result(ok bool, format string, args ...any) {
	c := r.good
	if !ok {
		c = r.bad
	}
	fmt.Fprintln(r.out, c.Sprintf(format, args...))
}

// JSON prints v as indented JSON. A non-empty filter is a jq expression
// applied to v first; every value it yields is printed.
func (r *Renderer) JSON(v any, filter string) error {
	if filter == "" {
		return writeIndented(r.out, v)
	}

	// gojq works on plain maps and slices, so round-trip through JSON.
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return err
	}

	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("jq: filter parse error: %w", err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("jq: compile error: %w", err)
	}

	iter := code.Run(input)
	for {
		out, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := out.(error); ok {
			return fmt.Errorf("jq: %w", err)
		}
		if err := writeIndented(r.out, out); err != nil {
			return err
		}
	}
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
