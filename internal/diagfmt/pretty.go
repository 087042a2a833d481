package diagfmt

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"classbuilder/internal/diag"
)

// Pretty prints one line per diagnostic:
//
//	<source>: error <CODE> [<where>]: <message>
//
// It walks bag.Items() in order, so callers Sort first.
func Pretty(w io.Writer, bag *diag.Bag, opts PrettyOpts) error {
	sevStyle := color.New(color.FgRed, color.Bold)
	codeStyle := color.New(color.FgYellow)
	whereStyle := color.New(color.FgCyan)
	pathStyle := color.New(color.Bold)
	for _, st := range []*color.Color{sevStyle, codeStyle, whereStyle, pathStyle} {
		if opts.Color {
			st.EnableColor()
		} else {
			st.DisableColor()
		}
	}

	for _, d := range bag.Items() {
		line := ""
		if d.Source != "" {
			line = pathStyle.Sprint(formatPath(d.Source, opts.PathMode, opts.BaseDir)) + ": "
		}
		line += sevStyle.Sprint("error") + " " + codeStyle.Sprint(d.Code.ID())
		if d.Where != "" {
			line += " " + whereStyle.Sprint("["+d.Where+"]")
		}
		line += ": " + d.Message
		if opts.ShowTitle && d.Code != diag.UnknownCode {
			line += fmt.Sprintf(" (%s)", d.Code.Title())
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
