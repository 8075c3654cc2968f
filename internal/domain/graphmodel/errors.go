package graphmodel

import (
	"fmt"
	"strings"
)

// ModelError is a malformed schema. It is always fatal for a run.
type ModelError struct {
	Label        string
	Property     string
	Relationship string
	Reason       string
}

func (e *ModelError) Error() string {
	var b strings.Builder
	b.WriteString("graphmodel")
	if e.Label != "" {
		fmt.Fprintf(&b, ": label %s", e.Label)
	}
	if e.Property != "" {
		fmt.Fprintf(&b, " property %s", e.Property)
	}
	if e.Relationship != "" {
		fmt.Fprintf(&b, ": relationship %s", e.Relationship)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}
