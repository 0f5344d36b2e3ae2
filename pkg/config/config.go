package config

import (
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/chocolatkey/rasterpreview/pkg/preview"
	"github.com/chocolatkey/rasterpreview/pkg/raster"
)

type Output struct {
	Format    preview.Format `yaml:"format"`
	Quality   int            `yaml:"quality"`
	MaxWidth  int            `yaml:"max_width"`
	MaxHeight int            `yaml:"max_height"`
}

type Cache struct {
	Entries  int  `yaml:"entries"`
	Compress bool `yaml:"compress"`
}

type Config struct {
	Listen          string `yaml:"listen"`
	LogLevel        string `yaml:"log_level"`
	MaxInputBytes   int    `yaml:"max_input_bytes"`
	MaxDimension    int    `yaml:"max_dimension"`
	MaxPixels       int64  `yaml:"max_pixels"`
	PreferComposite bool   `yaml:"prefer_composite"`
	Output          Output `yaml:"output"`
	Cache           Cache  `yaml:"cache"`
	Workers         int    `yaml:"workers"` // 0 uses GOMAXPROCS
}

func Default() Config {
	return Config{
		Listen:        ":8089",
		LogLevel:      "info",
		MaxInputBytes: 256 << 20,
		MaxDimension:  raster.DefaultMaxDimension,
		MaxPixels:     raster.DefaultMaxPixels,
		Output: Output{
			Format:    preview.PNG,
			Quality:   preview.DefaultQuality,
			MaxWidth:  1024,
			MaxHeight: 1024,
		},
		Cache: Cache{
			Entries:  64,
			Compress: true,
		},
	}
}

// Load reads a YAML file over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	bin, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Infof("config file %s not found, using defaults", path)
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "failed reading config file %s", path)
	}
	if err = yaml.UnmarshalStrict(bin, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed parsing config file %s", path)
	}
	logrus.Debugln("loaded config from", path)
	return cfg, nil
}

// Set applies overrides such as "output.format" = "webp". Values are
// converted to the field's type.
func (c *Config) Set(overrides map[string]string) error {
	if len(overrides) == 0 {
		return nil
	}
	tree := make(map[string]interface{})
	for key, value := range overrides {
		parts := strings.Split(key, ".")
		node := tree
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]interface{})
			if !ok {
				child = make(map[string]interface{})
				node[part] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = value
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		TagName:          "yaml",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return errors.Wrap(err, "failed creating override decoder")
	}
	return errors.Wrap(dec.Decode(tree), "invalid override")
}

func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "invalid log_level")
	}
	if _, err := preview.ParseFormat(string(c.Output.Format)); err != nil {
		return errors.Wrap(err, "invalid output.format")
	}
	switch {
	case c.MaxInputBytes <= 0:
		return errors.Errorf("max_input_bytes must be positive, got %d", c.MaxInputBytes)
	case c.MaxDimension <= 0:
		return errors.Errorf("max_dimension must be positive, got %d", c.MaxDimension)
	case c.MaxPixels <= 0:
		return errors.Errorf("max_pixels must be positive, got %d", c.MaxPixels)
	case c.Output.Quality < 0 || c.Output.Quality > 100:
		return errors.Errorf("output.quality must be within 0-100, got %d", c.Output.Quality)
	case c.Output.MaxWidth < 0 || c.Output.MaxHeight < 0:
		return errors.Errorf("invalid output bounds %dx%d", c.Output.MaxWidth, c.Output.MaxHeight)
	case c.Cache.Entries < 0:
		return errors.Errorf("cache.entries must not be negative, got %d", c.Cache.Entries)
	case c.Workers < 0:
		return errors.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

func (c Config) Limits() raster.Limits {
	return raster.Limits{MaxDimension: c.MaxDimension, MaxPixels: c.MaxPixels}
}

// PreviewOptions are the default render options for the configured output.
func (c Config) PreviewOptions() preview.Options {
	format, _ := preview.ParseFormat(string(c.Output.Format))
	return preview.Options{
		Format:    format,
		Quality:   c.Output.Quality,
		MaxWidth:  c.Output.MaxWidth,
		MaxHeight: c.Output.MaxHeight,
	}
}
