package main

import (
	"fmt"
	"io/ioutil"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/mit-pdos/go-sfs/sfs"
)

const (
	envVarPrefix = "SFS"
	defaultImage = "sfs_disk"
)

// Config has no envconfig defaults; a default would clobber values from the
// config file.
type Config struct {
	Image     string `envconfig:"SFS_IMAGE"      yaml:"image"`
	Debug     uint64 `envconfig:"SFS_DEBUG"      yaml:"debug"`
	DirBlocks int    `envconfig:"SFS_DIR_BLOCKS" yaml:"dirBlocks"`
	Verify    bool   `envconfig:"SFS_VERIFY"     yaml:"verify"`
}

// LoadConfig reads the optional YAML file named by SFS_CONFIG_FILE and then
// applies environment variables on top.
func LoadConfig() (*Config, error) {
	var c Config
	if configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE"); configFile != "" {
		data, err := ioutil.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.UnmarshalStrict(data, &c); err != nil {
			return nil, fmt.Errorf("unmarshaling config file: %w", err)
		}
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}
	if c.Image == "" {
		c.Image = defaultImage
	}
	return &c, nil
}

func (c *Config) Validate() error {
	if c.Image == "" {
		return fmt.Errorf("missing required configuration: image / %s_IMAGE", envVarPrefix)
	}
	return nil
}

func (c *Config) Options() sfs.Options {
	return sfs.Options{DirBlocks: c.DirBlocks, Verify: c.Verify}
}
