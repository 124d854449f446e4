package sync

import (
	"strings"

	"field-sync-service/internal/entity"
)

// ValidationError lists the required fields a payload is missing.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

func validate(payload entity.Entity, required []string, isEdit bool) error {
	var missing []string
	for _, field := range required {
		if !payload.Has(field) {
			missing = append(missing, field)
		}
	}
	if isEdit && payload.Identity() == "" {
		missing = append(missing, entity.FieldID)
	}

	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}
