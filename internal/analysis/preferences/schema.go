package preferences

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/mion-onsen/concierge/backend/internal/model/onsen"
)

var (
	schemaOnce   sync.Once
	schemaLoader gojsonschema.JSONLoader
	schemaErr    error
)

// Schema returns the JSON Schema reflected from onsen.Preferences.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  true,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := reflector.Reflect(&onsen.Preferences{})
	schema.Version = "http://json-schema.org/draft-07/schema#"
	schema.Title = "Onsen preferences"
	return schema
}

func loader() (gojsonschema.JSONLoader, error) {
	schemaOnce.Do(func() {
		raw, err := json.Marshal(Schema())
		if err != nil {
			schemaErr = fmt.Errorf("marshal preferences schema: %w", err)
			return
		}
		schemaLoader = gojsonschema.NewBytesLoader(raw)
	})
	return schemaLoader, schemaErr
}

// Validate checks raw JSON against the preferences schema. It returns the
// list of violations, empty when valid.
func Validate(raw []byte) ([]string, error) {
	l, err := loader()
	if err != nil {
		return nil, err
	}
	result, err := gojsonschema.Validate(l, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("validate preferences: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, e.String())
	}
	return problems, nil
}
