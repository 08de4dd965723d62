package llm

import (
	"encoding/json"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// DecodeModelJSON unmarshals model output into v, stripping markdown code
// fences and attempting a repair pass when the payload is malformed. Models
// behind OpenRouter frequently emit fenced or slightly broken JSON.
func DecodeModelJSON(raw string, v any) error {
	cleaned := stripCodeFence(raw)

	err := json.Unmarshal([]byte(cleaned), v)
	if err == nil {
		return nil
	}

	fixed, repairErr := jsonrepair.JSONRepair(cleaned)
	if repairErr != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}

func stripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
