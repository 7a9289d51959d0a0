package normalize

import (
	"fmt"
	"strings"
)

// ValidationError lists the required fields a record is missing
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

// Validate checks the fields every category requires
func Validate(title, priceText, location string) error {
	var missing []string
	if strings.TrimSpace(title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(priceText) == "" {
		missing = append(missing, "price_text")
	}
	if strings.TrimSpace(location) == "" {
		missing = append(missing, "location")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}
