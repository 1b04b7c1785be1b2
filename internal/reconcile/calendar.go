package reconcile

import (
	"bytes"
	"encoding/json"

	"codeboard/internal/provider"
)

// ParseCalendar turns the provider's submission calendar into a day-start -> count map.
// The provider sends either a JSON-encoded string or an object; anything else,
// including malformed JSON, yields an empty map.
func ParseCalendar(v any) map[string]int {
	calendar := make(map[string]int)

	var entries map[string]any
	switch c := v.(type) {
	case string:
		if c == "" {
			return calendar
		}
		decoder := json.NewDecoder(bytes.NewReader([]byte(c)))
		decoder.UseNumber()
		if err := decoder.Decode(&entries); err != nil {
			return calendar
		}
	case map[string]any:
		entries = c
	case provider.Raw:
		entries = c
	case map[string]int:
		for day, count := range c {
			calendar[day] = count
		}
		return calendar
	default:
		return calendar
	}

	for day, count := range entries {
		calendar[day] = int(provider.ToInt64(count))
	}
	return calendar
}
