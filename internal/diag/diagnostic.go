package diag

import "errors"

// Diagnostic is a reported failure attached to an input (recipe path or
// class name) for batch output.
type Diagnostic struct {
	Code    Code
	Message string
	Source  string
	Where   string
}

// FromError converts err into a Diagnostic for source.
func FromError(source string, err error) Diagnostic {
	d := Diagnostic{Source: source, Message: err.Error()}
	var de *Error
	if errors.As(err, &de) {
		d.Code = de.Code
		d.Message = de.Message
		d.Where = de.Where
	}
	return d
}
