package lines

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// File is the on-disk shape of a lines file:
//
//	lines:
//	  - origin: Trenton
//	    name: Trenton
type File struct {
	Lines []Line `yaml:"lines" toml:"lines" validate:"required,min=1,dive"`
}

var validate = validator.New()

// Load reads a lines file. The format is picked from the extension:
// .yaml/.yml for YAML, .toml for TOML.
func Load(path string) ([]Line, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lines file: %w", err)
	}

	var f File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode yaml lines file: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decode toml lines file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported lines file extension %q", ext)
	}

	if err := Validate(f.Lines); err != nil {
		return nil, err
	}
	return f.Lines, nil
}

// Validate checks that every line has an origin and a name and that names
// are unique, since the name is half of the cache key.
func Validate(ls []Line) error {
	if err := validate.Struct(File{Lines: ls}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid lines: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid lines: %w", err)
	}

	seen := make(map[string]struct{}, len(ls))
	for _, l := range ls {
		if _, dup := seen[l.Name]; dup {
			return fmt.Errorf("invalid lines: duplicate line name %q", l.Name)
		}
		seen[l.Name] = struct{}{}
	}
	return nil
}
