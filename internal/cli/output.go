package cli

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// writeOutput 以 json 或 yaml 输出结果
func writeOutput(w io.Writer, format string, data any) error {
	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
