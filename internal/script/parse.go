/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package script loads presentation scripts from JSON or YAML, validates them
// against an embedded JSON schema and reports authoring problems such as
// branches that point past the end or scenes that can never be reached.
package script

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gojsonschema "github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

//go:embed demo.yaml
var demoYAML []byte

// Format is a script file encoding.
type Format int

const (
	FormatJSON Format = iota
	FormatYAML
)

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return 0, fmt.Errorf("unsupported script extension %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}
}

// ValidationError lists every schema violation of a script document.
type ValidationError struct {
	Errors []Error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Error())
	}
	return "invalid script: " + strings.Join(msgs, "; ")
}

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// Validate checks a JSON document against the script schema.
func Validate(doc []byte) error {
	s, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("compile script schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate script: %w", err)
	}
	if res.Valid() {
		return nil
	}
	verr := &ValidationError{}
	for _, e := range res.Errors() {
		verr.Errors = append(verr.Errors, Error{Field: e.Field(), Message: e.Description()})
	}
	return verr
}

// Parse decodes and validates a script.
func Parse(data []byte, f Format) (Script, error) {
	doc := data
	if f == FormatYAML {
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return Script{}, fmt.Errorf("parse yaml script: %w", err)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return Script{}, fmt.Errorf("convert yaml script: %w", err)
		}
		doc = b
	}
	if err := Validate(doc); err != nil {
		return Script{}, err
	}
	var s Script
	if err := json.Unmarshal(doc, &s); err != nil {
		return Script{}, fmt.Errorf("decode script: %w", err)
	}
	return s, nil
}

// Load reads a script file, choosing the format from its extension.
func Load(path string) (Script, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return Script{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("read script: %w", err)
	}
	s, err := Parse(data, f)
	if err != nil {
		return Script{}, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Demo returns the built-in example script.
func Demo() Script {
	s, err := Parse(demoYAML, FormatYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded demo script is invalid: %v", err))
	}
	return s
}
