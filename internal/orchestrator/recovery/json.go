package recovery

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// jsonOrNil marshals a small audit payload, swallowing the (practically
// impossible) error from marshaling a map of strings — the same contract
// internal/repos uses for its own JSON columns.
func jsonOrNil(v map[string]any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
