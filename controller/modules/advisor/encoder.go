package advisor

import (
	"fmt"
	"strings"
)

// LabelEncoder decodes class codes into labels.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

func (e *LabelEncoder) validate() error {
	if len(e.Classes) < 2 {
		return fmt.Errorf("label encoder has %d classes, need at least 2", len(e.Classes))
	}
	seen := make(map[string]bool)
	for i, c := range e.Classes {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("class %d has an empty label", i)
		}
		if seen[c] {
			return fmt.Errorf("class %q listed twice", c)
		}
		seen[c] = true
	}
	return nil
}

func (e *LabelEncoder) Decode(code int) (string, error) {
	if code < 0 || code >= len(e.Classes) {
		return "", fmt.Errorf("class code %d outside 0-%d", code, len(e.Classes)-1)
	}
	return e.Classes[code], nil
}
