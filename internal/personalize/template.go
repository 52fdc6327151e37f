package personalize

import (
	"encoding/json"
	"fmt"
	"os"
)

// Template is a subject/body pair with named placeholders such as
// {empresa} and {razao_social}
type Template struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// LoadTemplate reads a template pair from a JSON file
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	tmpl := &Template{}
	if err := json.Unmarshal(data, tmpl); err != nil {
		return nil, fmt.Errorf("failed to parse template file: %w", err)
	}

	if tmpl.Subject == "" {
		return nil, fmt.Errorf("template subject is empty")
	}
	if tmpl.Body == "" {
		return nil, fmt.Errorf("template body is empty")
	}

	return tmpl, nil
}
