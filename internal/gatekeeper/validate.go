package gatekeeper

import (
	"fmt"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/internal/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/Document-Extraction-Pipeline/pkg/errors"
)

const maxFileNameLength = 255

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrInvalidInput
}

// ValidateUploadRequest checks the upload-request surface input. Rejected
// requests cause no state mutation.
func ValidateUploadRequest(req *document.UploadRequest) error {
	errs := make(map[string]string)

	fileName := strings.TrimSpace(req.FileName)
	if fileName == "" {
		errs["fileName"] = "fileName is required"
	} else if len(fileName) > maxFileNameLength {
		errs["fileName"] = fmt.Sprintf("fileName must be at most %d characters", maxFileNameLength)
	} else if strings.ContainsAny(fileName, "/\\") {
		errs["fileName"] = "fileName must not contain path separators"
	}
	if strings.TrimSpace(req.ContentType) == "" {
		errs["contentType"] = "contentType is required"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
