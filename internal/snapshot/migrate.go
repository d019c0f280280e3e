package snapshot

import (
	"encoding/json"
	"fmt"
)

// migrations maps a source schema version to the step that lifts data one
// version forward. Decode chains steps until the current schema is reached.
var migrations = map[int]func(json.RawMessage) (json.RawMessage, error){
	1: migrateV1toV2,
}

func migrate(data json.RawMessage, from int) (json.RawMessage, error) {
	for version := from; version < SchemaVersion; version++ {
		step, ok := migrations[version]
		if !ok {
			return nil, fmt.Errorf("%w: no migration from schema %d", ErrIncompatibleSchema, version)
		}
		migrated, err := step(data)
		if err != nil {
			return nil, fmt.Errorf("migrate schema %d to %d: %w", version, version+1, err)
		}
		data = migrated
	}
	return data, nil
}

// migrateV1toV2 renames the top-level "transcript" field to "document".
// Schema 1 predates annotation support; everything else carries over as-is.
func migrateV1toV2(data json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if transcript, ok := fields["transcript"]; ok {
		fields["document"] = transcript
		delete(fields, "transcript")
	}
	return json.Marshal(fields)
}
