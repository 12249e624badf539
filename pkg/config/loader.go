package config

import (
	"os"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/arthur-debert/dotsync/pkg/errors"
	"github.com/arthur-debert/dotsync/pkg/logging"
)

// Load reads the configuration file at path, layered on top of the
// built-in defaults, and deserializes it into a Raw config. The result
// is not yet validated; pass it to Resolve.
func Load(path string) (*Raw, error) {
	logger := logging.GetLogger("config.loader")

	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, errors.ErrIo, "cannot read config file %q", path)
	}

	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultConfig), toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrParse, "failed to load built-in defaults")
	}

	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, errors.Wrapf(err, errors.ErrParse, "failed to parse config file %q", path)
	}

	var raw Raw
	if err := k.Unmarshal("", &raw); err != nil {
		return nil, errors.Wrapf(err, errors.ErrParse, "failed to decode config file %q", path)
	}

	logger.Debug().
		Str("path", path).
		Int("groups", len(raw.Groups)).
		Msg("configuration loaded")

	return &raw, nil
}
