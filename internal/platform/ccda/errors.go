package ccda

import (
	"errors"
	"fmt"
)

// ErrNoRootElement is wrapped by XMLStructureError when the input holds no
// element at all.
var ErrNoRootElement = errors.New("document has no root element")

// XMLStructureError reports markup or encoding failures. The whole parse is
// abandoned; no partial document is produced.
type XMLStructureError struct {
	FileName string
	Err      error
}

func (e *XMLStructureError) Error() string {
	return fmt.Sprintf("error parsing %s: %v", e.FileName, e.Err)
}

func (e *XMLStructureError) Unwrap() error { return e.Err }

// IsXMLStructureError reports whether err is, or wraps, an XMLStructureError.
func IsXMLStructureError(err error) bool {
	var xe *XMLStructureError
	return errors.As(err, &xe)
}
