package extract

import (
	"bytes"
	"encoding/json"
)

// Analysis holds the topic and document hints found in one utterance.
type Analysis struct {
	Topics    []string `json:"topics"`
	Documents []string `json:"documents"`
}

type analysisResponse struct {
	Topics    *[]string `json:"topics"`
	Documents *[]string `json:"documents"`
}

type tasksResponse struct {
	Tasks *[]taskItem `json:"tasks"`
}

type taskItem struct {
	Type     text `json:"type"`
	Document text `json:"document"`
	Order    text `json:"order"`
}

// text accepts a JSON string, number or null. Models tend to emit order numbers unquoted.
type text string

func (t *text) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	switch {
	case bytes.Equal(data, []byte("null")):
		*t = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var value string
		if err := json.Unmarshal(data, &value); err != nil {
			return err
		}
		*t = text(value)
		return nil
	}

	var number json.Number
	if err := json.Unmarshal(data, &number); err != nil {
		return err
	}
	*t = text(number.String())

	return nil
}
