package config

import (
	"fmt"

	"gopkg.in/yaml.v2"
)

type (
	Provider interface {
		Provide(source string, dest any) error
	}

	Reader interface {
		Read(source string) (string, error)
	}
)

// YAMLProvider decodes the documents a Reader returns. Unknown keys are
// rejected so a mistyped override fails the run instead of being ignored.
type YAMLProvider struct {
	reader Reader
}

func NewYAMLProvider(reader Reader) *YAMLProvider {
	return &YAMLProvider{reader: reader}
}

func (p *YAMLProvider) Provide(source string, dest any) error {
	doc, err := p.reader.Read(source)
	if err != nil {
		return err
	}
	if err := yaml.UnmarshalStrict([]byte(doc), dest); err != nil {
		return fmt.Errorf("while decoding %s: %w", source, err)
	}
	return nil
}
