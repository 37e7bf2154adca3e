// Package siteschema validates site import documents before anything
// reaches the database. Schema errors surface with JSON pointers so an
// operator can fix the file without reading Go code.
package siteschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed sites.schema.json
var sitesSchemaJSON string

type SiteDocument struct {
	Version string           `json:"version"`
	Sites   []SiteDefinition `json:"sites"`
}

type SiteDefinition struct {
	Slug           string          `json:"slug"`
	Name           string          `json:"name"`
	PropertyURL    string          `json:"property_url"`
	Enabled        *bool           `json:"enabled,omitempty"`
	ImportSchedule *ImportSchedule `json:"import_schedule,omitempty"`
	ReportSchedule *ReportSchedule `json:"report_schedule,omitempty"`
}

type ImportSchedule struct {
	Weekday int16  `json:"weekday"`
	Slot    string `json:"slot"`
}

type ReportSchedule struct {
	Weekday     int16  `json:"weekday"`
	WeekOfMonth int16  `json:"week_of_month"`
	Slot        string `json:"slot"`
}

// IsEnabled applies the document default of true.
func (d *SiteDefinition) IsEnabled() bool {
	return d.Enabled == nil || *d.Enabled
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateSiteImport checks a raw document against the embedded schema
// plus the semantic rules the schema cannot express, and returns the
// decoded document.
func ValidateSiteImport(payload json.RawMessage) (*SiteDocument, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode import JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize import JSON: %w", err)
	}

	var document SiteDocument
	if err := json.Unmarshal(normalized, &document); err != nil {
		return nil, fmt.Errorf("unmarshal import: %w", err)
	}

	if err := validateSemantics(&document); err != nil {
		return nil, err
	}

	return &document, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("sites.schema.json", strings.NewReader(sitesSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("sites.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("document is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("document contains trailing content")
	}

	return value, nil
}

func validateSemantics(document *SiteDocument) error {
	if document == nil {
		return fmt.Errorf("document is nil")
	}

	seen := make(map[string]bool, len(document.Sites))
	for i := range document.Sites {
		site := &document.Sites[i]

		if seen[site.Slug] {
			return fmt.Errorf("sites[%d]: duplicate slug %q", i, site.Slug)
		}
		seen[site.Slug] = true

		if strings.TrimSpace(site.Name) == "" {
			return fmt.Errorf("sites[%d]: name must not be blank", i)
		}

		parsed, err := url.Parse(strings.TrimSpace(site.PropertyURL))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("sites[%d]: property_url %q is not an absolute URL", i, site.PropertyURL)
		}
	}

	return nil
}
