package schema

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

// Section schemas for controller export payloads. Exports in the wild carry
// many more fields than these; the schemas pin down only what the analysis
// relies on and leave everything else open.
const (
	devicesSchema = `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "array",
		"items": {
			"type": "object",
			"required": ["mac"],
			"properties": {
				"mac": {"type": "string", "pattern": "^[0-9a-fA-F]{2}(:[0-9a-fA-F]{2}){5}$"},
				"name": {"type": "string"},
				"type": {"type": "string"},
				"model": {"type": "string"},
				"ip": {"type": "string"},
				"version": {"type": "string"},
				"adopted": {"type": "boolean"},
				"state": {"type": "integer"},
				"uptime": {"type": "number"},
				"radio_table": {"type": "array", "items": {"type": "object"}}
			}
		}
	}`

	apStatsSchema = `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "array",
		"items": {
			"type": "object",
			"required": ["time"],
			"properties": {
				"time": {"type": "number"},
				"mac": {"type": "string"},
				"ap": {"type": "string"},
				"satisfaction": {"type": ["number", "null"]},
				"num_sta": {"type": "number"}
			}
		}
	}`

	userStatsSchema = `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "array",
		"items": {
			"type": "object",
			"required": ["time"],
			"properties": {
				"time": {"type": "number"},
				"satisfaction": {"type": ["number", "null"]},
				"num_sta": {"type": "number"}
			}
		}
	}`

	eventsSchema = `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "array",
		"items": {
			"type": "object",
			"properties": {
				"time": {"type": "number"},
				"datetime": {"type": "string"},
				"timestamp": {"type": ["number", "string"]},
				"key": {"type": "string"},
				"msg": {"type": "string"},
				"message": {"type": "string"}
			}
		}
	}`

	clientsSchema = `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"type": "array",
		"items": {
			"type": "object",
			"required": ["mac"],
			"properties": {
				"mac": {"type": "string", "pattern": "^[0-9a-fA-F]{2}(:[0-9a-fA-F]{2}){5}$"},
				"hostname": {"type": "string"},
				"signal": {"type": "number"},
				"rssi": {"type": "number"},
				"satisfaction": {"type": ["number", "null"]}
			}
		}
	}`
)

// sectionSources maps export section names to their schema documents
var sectionSources = map[string]string{
	"devices":          devicesSchema,
	"hourly_ap_stats":  apStatsSchema,
	"daily_ap_stats":   apStatsSchema,
	"daily_user_stats": userStatsSchema,
	"events":           eventsSchema,
	"clients":          clientsSchema,
	"client_history":   apStatsSchema,
}

// SchemaValidator validates controller export sections against their schemas
type SchemaValidator struct {
	sectionSchemas map[string]*gojsonschema.Schema
}

// NewSchemaValidator compiles the section schemas
func NewSchemaValidator() (*SchemaValidator, error) {
	sectionSchemas := make(map[string]*gojsonschema.Schema, len(sectionSources))
	for section, source := range sectionSources {
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema for section %s: %w", section, err)
		}
		sectionSchemas[section] = compiled
	}

	return &SchemaValidator{sectionSchemas: sectionSchemas}, nil
}

// ValidateSection validates one export section payload. The bool reports
// whether the payload conforms; the string slice carries the violations.
func (v *SchemaValidator) ValidateSection(section string, payload []byte) (bool, []string, error) {
	schema, ok := v.sectionSchemas[section]
	if !ok {
		return false, []string{fmt.Sprintf("no schema found for section %s", section)}, nil
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(payload))
	if err != nil {
		return false, nil, fmt.Errorf("validation error: %w", err)
	}

	if !result.Valid() {
		violations := make([]string, len(result.Errors()))
		for i, resultErr := range result.Errors() {
			violations[i] = resultErr.String()
		}
		return false, violations, nil
	}

	return true, nil, nil
}

// ValidateExport validates every known section present in a raw controller
// export. Unknown sections are ignored; the export format carries fields this
// tool has no use for.
func (v *SchemaValidator) ValidateExport(data []byte) (bool, map[string][]string, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return false, nil, fmt.Errorf("failed to parse export: %w", err)
	}

	valid := true
	violations := make(map[string][]string)
	for section := range v.sectionSchemas {
		payload, ok := sections[section]
		if !ok {
			continue
		}
		sectionValid, sectionViolations, err := v.ValidateSection(section, payload)
		if err != nil {
			return false, nil, fmt.Errorf("failed to validate section %s: %w", section, err)
		}
		if !sectionValid {
			valid = false
			violations[section] = sectionViolations
		}
	}

	return valid, violations, nil
}

// SupportedSections returns the sections that have schemas
func (v *SchemaValidator) SupportedSections() []string {
	sections := make([]string, 0, len(v.sectionSchemas))
	for section := range v.sectionSchemas {
		sections = append(sections, section)
	}
	sort.Strings(sections)
	return sections
}
