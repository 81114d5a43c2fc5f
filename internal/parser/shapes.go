package parser

import (
	"fmt"
	"io"
	"os"

	"github.com/ndpa-visualizer/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// displayNameTypes is the closed mapping from the NDPA displayname/style
// token to the rendered annotation type. Several display styles collapse
// onto the same type (the freehand variants in particular). Tokens outside
// this table are a per-annotation decode error, never a whole-file failure.
var displayNameTypes = map[string]models.AnnotationType{
	"AnnotateFreehand":      models.TypeFreehand,
	"AnnotateFreehandLine":  models.TypeFreehand,
	"AnnotatePolygon":       models.TypePolygon,
	"AnnotateCircle":        models.TypeCircle,
	"AnnotateRectangle":     models.TypeRectangle,
	"AnnotatePin":           models.TypePointer,
	"AnnotatePointer":       models.TypePointer,
	"AnnotateRuler":         models.TypeRuler,
	"AnnotateLinearMeasure": models.TypeRuler,
}

// validTypes guards alias rules: an alias may only target a type the
// decoder already knows how to emit.
var validTypes = map[models.AnnotationType]struct{}{
	models.TypeFreehand:  {},
	models.TypePolygon:   {},
	models.TypeCircle:    {},
	models.TypeRectangle: {},
	models.TypePointer:   {},
	models.TypeRuler:     {},
}

// AliasRules is the YAML format for extra displayname tokens. Vendor
// software localizes and versions the displayname attribute, so deployments
// can map the variants they encounter onto the closed type set without a
// rebuild.
type AliasRules struct {
	Aliases []DisplayNameAlias `yaml:"aliases"`
}

// DisplayNameAlias maps one displayname token to a known annotation type.
type DisplayNameAlias struct {
	DisplayName string `yaml:"displayname"`
	Type        string `yaml:"type"`
}

// ParseAliasRules parses alias rules from an io.Reader and validates that
// every alias targets a known annotation type.
func ParseAliasRules(r io.Reader) (map[string]models.AnnotationType, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var rules AliasRules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, err
	}

	aliases := make(map[string]models.AnnotationType, len(rules.Aliases))
	for _, a := range rules.Aliases {
		t := models.AnnotationType(a.Type)
		if _, ok := validTypes[t]; !ok {
			return nil, fmt.Errorf("alias %q targets unknown annotation type %q", a.DisplayName, a.Type)
		}
		if a.DisplayName == "" {
			return nil, fmt.Errorf("alias with empty displayname for type %q", a.Type)
		}
		aliases[a.DisplayName] = t
	}

	return aliases, nil
}

// LoadAliasRules parses an alias rules YAML file from disk.
func LoadAliasRules(filePath string) (map[string]models.AnnotationType, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return ParseAliasRules(file)
}

// resolveType maps a displayname token to its annotation type. Aliases are
// consulted first so a deployment can narrow a token the built-in table
// treats differently.
func resolveType(displayName string, aliases map[string]models.AnnotationType) (models.AnnotationType, bool) {
	if t, ok := aliases[displayName]; ok {
		return t, true
	}
	t, ok := displayNameTypes[displayName]
	return t, ok
}
