package common

import (
	"encoding/json"
	"os"
)

type ciResult struct {
	Check   string   `json:"check"`
	OK      bool     `json:"ok"`
	Details []string `json:"details,omitempty"`
	Error   string   `json:"error,omitempty"`
}

// PrintCIResult writes a single machine-readable result line to stdout for
// use in pipelines.
func PrintCIResult(ok bool, check string, details []string, err error) {
	result := ciResult{Check: check, OK: ok, Details: details}
	if err != nil {
		result.Error = err.Error()
	}
	enc := json.NewEncoder(os.Stdout)
	_ = enc.Encode(result)
}
