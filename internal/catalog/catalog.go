package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/zhouzirui/agent-desk/backend/internal/model/category"
	"github.com/zhouzirui/agent-desk/backend/internal/model/language"
)

// Catalog bundles the static reference data served to clients.
type Catalog struct {
	Categories []category.Category `toml:"categories"`
	Languages  []language.Language `toml:"languages"`
}

// Default returns the built-in catalog.
func Default() Catalog {
	return Catalog{
		Categories: category.Seed(),
		Languages:  language.Seed(),
	}
}

// Load returns the built-in catalog, overridden by the TOML file at path when set.
// Sections missing from the file keep their defaults.
func Load(path string) (Catalog, error) {
	cat := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cat, nil
	}

	var file Catalog
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog %s: %w", path, err)
	}

	if len(file.Categories) > 0 {
		cat.Categories = file.Categories
	}
	if len(file.Languages) > 0 {
		cat.Languages = file.Languages
	}

	if err := cat.Validate(); err != nil {
		return Catalog{}, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// Validate rejects duplicate keys and malformed language tags.
func (c Catalog) Validate() error {
	seen := make(map[category.Key]struct{}, len(c.Categories))
	for _, item := range c.Categories {
		if item.Key == "" {
			return errors.New("category key is required")
		}
		if _, dup := seen[item.Key]; dup {
			return fmt.Errorf("duplicate category %q", item.Key)
		}
		seen[item.Key] = struct{}{}
	}

	codes := make(map[string]struct{}, len(c.Languages))
	hasDefault := false
	for _, item := range c.Languages {
		if err := item.Validate(); err != nil {
			return err
		}
		code := language.Normalize(item.Code)
		if _, dup := codes[code]; dup {
			return fmt.Errorf("duplicate language %q", item.Code)
		}
		codes[code] = struct{}{}
		if code == language.Default {
			hasDefault = true
		}
	}
	if !hasDefault {
		return fmt.Errorf("language list must include %q", language.Default)
	}
	return nil
}
