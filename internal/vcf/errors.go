package vcf

import "fmt"

// InputFormatError reports an input file that cannot be read as variants at all.
type InputFormatError struct {
	Columns int // Number of tab-separated columns detected, -1 if unknown
	Message string
	Err     error
}

func (e *InputFormatError) Error() string {
	msg := "variant input: " + e.Message
	if e.Columns >= 0 {
		msg = fmt.Sprintf("%s (%d fields detected using TAB, expected at least %d)", msg, e.Columns, MinColumns)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InputFormatError) Unwrap() error { return e.Err }

// RecordError reports a single row that cannot be parsed or normalized.
type RecordError struct {
	Line    int
	Raw     string
	Message string
}

func (e *RecordError) Error() string {
	if e.Raw == "" {
		return fmt.Sprintf("variant record at line %d: %s", e.Line, e.Message)
	}
	return fmt.Sprintf("variant record at line %d: %s: %q", e.Line, e.Message, e.Raw)
}
