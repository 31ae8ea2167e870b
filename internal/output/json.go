package output

import (
	"encoding/json"
)

// JSONFormatter renders a report's Data as JSON.
type JSONFormatter struct {
	Indent bool
}

// Format renders report.Data.
func (f *JSONFormatter) Format(report Report) (string, error) {
	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(report.Data, "", "  ")
	} else {
		data, err = json.Marshal(report.Data)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
