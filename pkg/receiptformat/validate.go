package receiptformat

import (
	"fmt"
	"math"
)

// ValidateLine checks the enumerated fields of a line
func ValidateLine(o LineOptions) error {
	if o.LineLength < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLineLength, o.LineLength)
	}
	if !o.Alignment.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAlignment, string(o.Alignment))
	}
	if !o.FontSize.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFontSize, string(o.FontSize))
	}
	return nil
}

// ValidateJob validates a Job structure
func ValidateJob(j *Job) error {
	if j == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}
	if j.Version != "" && j.Version != Version {
		return fmt.Errorf("%w: unsupported version %s (expected %s)", ErrInvalidJob, j.Version, Version)
	}

	for i, item := range j.Items {
		if math.IsNaN(item) || math.IsInf(item, 0) {
			return fmt.Errorf("%w: item[%d] is not a finite number", ErrInvalidJob, i)
		}
	}

	return nil
}
