package diagfmt

import (
	"encoding/json"
	"io"

	"classbuilder/internal/diag"
)

// DiagnosticJSON is one diagnostic in JSON output.
type DiagnosticJSON struct {
	Code     string `json:"code"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Source   string `json:"source,omitempty"`
	Where    string `json:"where,omitempty"`
}

// DiagnosticsOutput is the root of JSON output.
type DiagnosticsOutput struct {
	Diagnostics []DiagnosticJSON `json:"diagnostics"`
	Count       int              `json:"count"`
	Truncated   bool             `json:"truncated,omitempty"`
}

// BuildOutput converts the bag without writing it.
func BuildOutput(bag *diag.Bag, opts JSONOpts) DiagnosticsOutput {
	items := bag.Items()
	out := DiagnosticsOutput{Diagnostics: make([]DiagnosticJSON, 0, len(items)), Count: len(items)}
	for i, d := range items {
		if opts.Max > 0 && i >= opts.Max {
			out.Truncated = true
			break
		}
		out.Diagnostics = append(out.Diagnostics, DiagnosticJSON{
			Code:     d.Code.ID(),
			Category: d.Code.Category().String(),
			Title:    d.Code.Title(),
			Message:  d.Message,
			Source:   formatPath(d.Source, opts.PathMode, opts.BaseDir),
			Where:    d.Where,
		})
	}
	return out
}

// JSON writes the bag as indented JSON.
func JSON(w io.Writer, bag *diag.Bag, opts JSONOpts) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(BuildOutput(bag, opts))
}
