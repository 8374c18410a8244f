package textsim

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed stopwords/default.yaml
var defaultStopWordsYAML []byte

//go:embed stopwords/stopwords.schema.json
var stopWordsSchemaJSON string

// StopWordFile is the on-disk layout of a stop-word list file.
type StopWordFile struct {
	Version        int                 `yaml:"version"`
	ExtendDefaults *bool               `yaml:"extend_defaults"`
	Lists          map[string][]string `yaml:"lists"`
}

// StopWords is an immutable set of raw stop-word entries grouped by list name.
type StopWords struct {
	lists map[string][]string
}

var (
	stopWordsCompileOnce sync.Once
	stopWordsSchema      *jsonschema.Schema
	stopWordsSchemaErr   error

	defaultStopWordsOnce sync.Once
	defaultStopWords     StopWords
	defaultStopWordsErr  error
)

// DefaultStopWords returns the embedded general and Turkish lists.
func DefaultStopWords() (StopWords, error) {
	defaultStopWordsOnce.Do(func() {
		file, err := ParseStopWordFile(defaultStopWordsYAML)
		if err != nil {
			defaultStopWordsErr = fmt.Errorf("parse embedded stop words: %w", err)
			return
		}
		defaultStopWords = newStopWords(file.Lists)
	})
	return defaultStopWords, defaultStopWordsErr
}

// LoadStopWords resolves the effective stop words. An empty path yields the
// embedded defaults. A file extends the defaults unless it sets
// extend_defaults: false.
func LoadStopWords(path string) (StopWords, error) {
	defaults, err := DefaultStopWords()
	if err != nil {
		return StopWords{}, err
	}

	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return defaults, nil
	}

	raw, err := os.ReadFile(trimmed)
	if err != nil {
		return StopWords{}, fmt.Errorf("read stop-word file %s: %w", trimmed, err)
	}
	file, err := ParseStopWordFile(raw)
	if err != nil {
		return StopWords{}, fmt.Errorf("stop-word file %s: %w", trimmed, err)
	}

	if file.ExtendDefaults != nil && !*file.ExtendDefaults {
		return newStopWords(file.Lists), nil
	}

	merged := make(map[string][]string, len(defaults.lists)+len(file.Lists))
	for name, words := range defaults.lists {
		merged[name] = append([]string(nil), words...)
	}
	for name, words := range file.Lists {
		merged[name] = append(merged[name], words...)
	}
	return newStopWords(merged), nil
}

// ParseStopWordFile decodes YAML and validates it against the embedded schema.
func ParseStopWordFile(raw []byte) (StopWordFile, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return StopWordFile{}, fmt.Errorf("stop-word file is empty")
	}

	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return StopWordFile{}, fmt.Errorf("decode YAML: %w", err)
	}

	// Round-trip through JSON so the validator sees json.Number and plain maps.
	asJSON, err := json.Marshal(generic)
	if err != nil {
		return StopWordFile{}, fmt.Errorf("convert YAML to JSON: %w", err)
	}
	value, err := decodeJSONValue(asJSON)
	if err != nil {
		return StopWordFile{}, fmt.Errorf("decode converted JSON: %w", err)
	}

	schema, err := loadStopWordsSchema()
	if err != nil {
		return StopWordFile{}, fmt.Errorf("load schema: %w", err)
	}
	if err := schema.Validate(value); err != nil {
		return StopWordFile{}, fmt.Errorf("schema validation failed: %w", err)
	}

	var file StopWordFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return StopWordFile{}, fmt.Errorf("decode stop-word file: %w", err)
	}
	return file, nil
}

// Lists returns the list names in sorted order.
func (s StopWords) Lists() []string {
	names := make([]string, 0, len(s.lists))
	for name := range s.lists {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Words returns the raw entries of every list, sorted and deduplicated.
func (s StopWords) Words() []string {
	seen := make(map[string]struct{})
	for _, words := range s.lists {
		for _, w := range words {
			seen[w] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for w := range seen {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// Len counts distinct raw entries.
func (s StopWords) Len() int {
	return len(s.Words())
}

func newStopWords(lists map[string][]string) StopWords {
	copied := make(map[string][]string, len(lists))
	for name, words := range lists {
		cleaned := make([]string, 0, len(words))
		for _, w := range words {
			if trimmed := strings.TrimSpace(w); trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		copied[name] = cleaned
	}
	return StopWords{lists: copied}
}

func loadStopWordsSchema() (*jsonschema.Schema, error) {
	stopWordsCompileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020

		if err := compiler.AddResource("stopwords.schema.json", strings.NewReader(stopWordsSchemaJSON)); err != nil {
			stopWordsSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("stopwords.schema.json")
		if err != nil {
			stopWordsSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		stopWordsSchema = schema
	})

	if stopWordsSchemaErr != nil {
		return nil, stopWordsSchemaErr
	}
	if stopWordsSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return stopWordsSchema, nil
}

func decodeJSONValue(raw []byte) (any, error) {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("trailing content")
	}
	return value, nil
}
