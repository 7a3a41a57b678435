package main

import (
	"context"
	"errors"

	"github.com/DyogenIBENS/FINSURF/internal/annotate"
	"github.com/DyogenIBENS/FINSURF/internal/tabix"
	"github.com/DyogenIBENS/FINSURF/internal/vcf"
)

// Error codes reported by RunError.
const (
	CodeInputFormat = "input_format"
	CodeRecord      = "record"
	CodeDataset     = "dataset"
	CodeConfig      = "config"
	CodeCancelled   = "cancelled"
	CodeInternal    = "internal"
)

// RunError is the failure of a command, tagged with a stable code.
type RunError struct {
	Code    string
	Message string
	Err     error
}

func (e *RunError) Error() string { return e.Message }

func (e *RunError) Unwrap() error { return e.Err }

// classify maps an error to its RunError.
func classify(err error) *RunError {
	var rerr *RunError
	if errors.As(err, &rerr) {
		return rerr
	}

	code := CodeInternal
	var (
		inputErr   *vcf.InputFormatError
		recordErr  *vcf.RecordError
		datasetErr *tabix.DatasetError
	)
	switch {
	case errors.As(err, &inputErr):
		code = CodeInputFormat
	case errors.As(err, &recordErr), errors.Is(err, annotate.ErrMalformedVariant):
		code = CodeRecord
	case errors.As(err, &datasetErr):
		code = CodeDataset
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		code = CodeCancelled
	}
	return &RunError{Code: code, Message: err.Error(), Err: err}
}

func configError(err error) *RunError {
	return &RunError{Code: CodeConfig, Message: err.Error(), Err: err}
}
