// Package failure defines the upload pipeline's error taxonomy.
//
// Every rejection is one of six sentinel kinds. Stages wrap the sentinel with
// Wrap so callers can both classify the error with errors.Is and show the
// operator the stage/operation chain that produced it.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMissingFilePart    = errors.New("no file part")
	ErrEmptyFilename      = errors.New("no file selected")
	ErrNoYearMatch        = errors.New("no valid year")
	ErrNoCategoryMatch    = errors.New("invalid category")
	ErrDestinationMissing = errors.New("destination missing")
	ErrMoveFailed         = errors.New("move failed")
)

// kinds is ordered so the most specific marker wins when several are chained.
var kinds = []struct {
	marker error
	kind   string
}{
	{ErrMissingFilePart, "missing_file_part"},
	{ErrEmptyFilename, "empty_filename"},
	{ErrNoYearMatch, "no_year_match"},
	{ErrNoCategoryMatch, "no_category_match"},
	{ErrDestinationMissing, "destination_missing"},
	{ErrMoveFailed, "move_failed"},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above; nil defaults to ErrMoveFailed.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrMoveFailed
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind returns the stable snake_case name of the error's taxonomy entry, or
// "internal" for errors outside the taxonomy and "" for nil.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.marker) {
			return k.kind
		}
	}
	return "internal"
}

// IsRejection reports whether the error came from the request or the filename
// rather than from the filesystem.
func IsRejection(err error) bool {
	switch {
	case errors.Is(err, ErrMissingFilePart),
		errors.Is(err, ErrEmptyFilename),
		errors.Is(err, ErrNoYearMatch),
		errors.Is(err, ErrNoCategoryMatch):
		return true
	default:
		return false
	}
}

// UserMessage renders the flash text shown to the uploader.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingFilePart):
		return "No file part"
	case errors.Is(err, ErrEmptyFilename):
		return "No selected file"
	case errors.Is(err, ErrNoYearMatch):
		return "Invalid file name: no valid year. Ensure it contains a year and CW/SW."
	case errors.Is(err, ErrNoCategoryMatch):
		return "Invalid file name: invalid category. Ensure it contains a year and CW/SW."
	case errors.Is(err, ErrDestinationMissing):
		return "Destination folder is missing; the file was left in staging."
	case errors.Is(err, ErrMoveFailed):
		return "Could not move the file into place; it was left in staging."
	default:
		return "Upload failed; see server logs."
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "upload failure"
	}
	return strings.Join(parts, ": ")
}
