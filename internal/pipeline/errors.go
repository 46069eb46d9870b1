package pipeline

import (
	"fmt"

	"github.com/joshua0006/Therapy-Tools-web-sub001/internal/model"
)

// ValidationError reports a malformed request. No side effects were attempted.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// ConversionError reports that every requested page failed to rasterize. A
// partial failure set is not an error at the request level.
type ConversionError struct {
	Failures []model.PageFailure
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("no pages could be converted (%d failures)", len(e.Failures))
}

// StorageError reports a failure to persist the selection record. Non-fatal:
// the pipeline logs it and continues toward delivery.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("store selection: %v", e.Err) }

func (e *StorageError) Unwrap() error { return e.Err }
