package compat

import (
	"encoding/json"
	"errors"
)

// isDecodeError reports whether err came from decoding a response body
// rather than from the transport.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
