package repos

import (
	"encoding/json"

	"gorm.io/datatypes"
)

// mustJSON marshals a value the repos package controls the shape of
// (metadata maps built by the orchestration core, never raw user input), so
// a marshal failure here indicates a programming error, not bad input.
func mustJSON(v any) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		panic("repos: marshal invariant violated: " + err.Error())
	}
	return datatypes.JSON(b)
}
