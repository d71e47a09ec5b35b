package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	berr "github.com/next-trace/scg-comms-stack/contract/errors"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// viper folds every key to lower case, but topic and service names are matched
// exactly against what callers pass. restoreNames re-reads the file's topics and
// services sections and puts the names back as written.
func restoreNames(path string, c *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, errors.Join(berr.ErrConfiguration, err))
	}

	doc := map[string]any{}

	switch ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")); ext {
	case "", "json":
		err = json.Unmarshal(raw, &doc)
	case "yaml", "yml":
		err = yaml.Unmarshal(raw, &doc)
	case "toml":
		err = toml.Unmarshal(raw, &doc)
	default:
		// other formats keep viper's lower-cased names
		return nil
	}

	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, errors.Join(berr.ErrConfiguration, err))
	}

	topics, err := renameKeys(c.Topics, sectionNames(doc, "topics"))
	if err != nil {
		return err
	}

	svcs, err := renameKeys(c.Services, sectionNames(doc, "services"))
	if err != nil {
		return err
	}

	c.Topics, c.Services = topics, svcs

	return nil
}

func sectionNames(doc map[string]any, section string) []string {
	for key, val := range doc {
		if !strings.EqualFold(key, section) {
			continue
		}

		m, ok := val.(map[string]any)
		if !ok {
			return nil
		}

		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}

		return names
	}

	return nil
}

func renameKeys[T any](folded map[string]T, names []string) (map[string]T, error) {
	if len(folded) == 0 || len(names) == 0 {
		return folded, nil
	}

	out := make(map[string]T, len(folded))
	seen := make(map[string]string, len(names))

	for _, name := range names {
		lower := strings.ToLower(name)
		if prev, dup := seen[lower]; dup {
			return nil, fmt.Errorf("names %q and %q differ only in case: %w", prev, name, berr.ErrConfiguration)
		}

		seen[lower] = name

		if v, ok := folded[lower]; ok {
			out[name] = v
		}
	}

	// entries only known to viper (env overrides) keep their folded name
	for lower, v := range folded {
		if _, ok := seen[lower]; !ok {
			out[lower] = v
		}
	}

	return out, nil
}
