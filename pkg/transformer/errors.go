package transformer

import (
	"errors"
	"fmt"
)

// MalformedInputError marks a whole-file structural failure: unreadable
// file, missing header, or missing required columns. Per-field parse
// failures degrade to typed defaults instead.
type MalformedInputError struct {
	File   string
	Reason error
}

func (e MalformedInputError) Error() string {
	return fmt.Sprintf("malformed export file %s: %v", e.File, e.Reason)
}

func (e MalformedInputError) Unwrap() error {
	return e.Reason
}

func IsMalformedInput(err error) bool {
	var me MalformedInputError
	return errors.As(err, &me)
}
