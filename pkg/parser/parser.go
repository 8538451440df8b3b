// Package parser turns raw config file contents into typed configs.
package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/emortalmc/live-config-parser/pkg/configs"
)

// ErrParse is matched by every error returned from a Parser.
var ErrParse = errors.New("failed to parse config")

// ErrTrailingData is returned when content continues after the config document.
var ErrTrailingData = errors.New("JSON document was not fully consumed")

// ParseError describes a config file that could not be parsed.
type ParseError struct {
	FileName string
	Content  string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse config file %s: %v", e.FileName, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}

// Parser parses the contents of a single config file.
type Parser[T configs.Config] interface {
	Parse(fileName string, content []byte) (T, error)
}

type normalizer interface {
	Normalize()
}

type validator interface {
	Validate() error
}

// JSONParser decodes JSON configs. newFn must return a fresh, non-nil config.
type JSONParser[T configs.Config] struct {
	newFn                 func() T
	disallowUnknownFields bool
}

// NewJSONParser creates a JSONParser for the config kind built by newFn.
func NewJSONParser[T configs.Config](newFn func() T) *JSONParser[T] {
	return &JSONParser[T]{newFn: newFn}
}

// Strict makes the parser reject unknown fields.
func (p *JSONParser[T]) Strict() *JSONParser[T] {
	p.disallowUnknownFields = true
	return p
}

// Parse implements Parser.
func (p *JSONParser[T]) Parse(fileName string, content []byte) (T, error) {
	cfg := p.newFn()

	dec := json.NewDecoder(bytes.NewReader(content))
	if p.disallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(cfg); err != nil {
		var zero T
		return zero, &ParseError{FileName: fileName, Content: string(content), Err: err}
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		var zero T
		return zero, &ParseError{FileName: fileName, Content: string(content), Err: ErrTrailingData}
	}

	if n, ok := any(cfg).(normalizer); ok {
		n.Normalize()
	}
	if v, ok := any(cfg).(validator); ok {
		if err := v.Validate(); err != nil {
			var zero T
			return zero, &ParseError{FileName: fileName, Content: string(content), Err: err}
		}
	}

	cfg.SetFileName(fileName)
	return cfg, nil
}

// GameModeParser returns the parser for game mode configs.
func GameModeParser() *JSONParser[*configs.GameModeConfig] {
	return NewJSONParser(func() *configs.GameModeConfig { return &configs.GameModeConfig{} })
}
