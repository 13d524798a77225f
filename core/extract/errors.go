package extract

import "fmt"

// ErrorKind classifies an extraction failure.
type ErrorKind string

const (
	KindSelectorNoMatch ErrorKind = "selector-no-match"
	KindStructuredPath  ErrorKind = "structured-path"
	KindParse           ErrorKind = "parse"
	KindScript          ErrorKind = "script"
)

// Error identifies the offending rule alongside the failure class so recipe
// authors can see exactly which rule broke.
type Error struct {
	Kind ErrorKind
	Rule string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed (%s, rule %q): %v", e.Kind, e.Rule, e.Err)
	}
	return fmt.Sprintf("extraction failed (%s, rule %q)", e.Kind, e.Rule)
}

func (e *Error) Unwrap() error { return e.Err }

// wrapScript attributes a script engine failure to the rule that ran it.
// Script error kinds (fault, timeout, return-type mismatch) stay reachable
// through errors.As on the wrapped *script.Error.
func wrapScript(rule string, err error) error {
	return &Error{Kind: KindScript, Rule: rule, Err: err}
}
