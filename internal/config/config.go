package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is looked up in the working directory when no --config flag
// is given.
const DefaultFile = "intcorrect.yaml"

type Config struct {
	Project struct {
		Root        string   `yaml:"root"`
		Exclude     string   `yaml:"exclude"` // regex over file paths
		IncludeDirs []string `yaml:"include_dirs"`
	} `yaml:"project"`
	Rewrite struct {
		InPlace                  bool `yaml:"in_place"`
		EnableABIBreakingChanges bool `yaml:"enable_abi_breaking_changes"`
		ForceRewrite             bool `yaml:"force_rewrite"`
		UseDecltype              bool `yaml:"use_decltype"`
		ExpandAuto               bool `yaml:"expand_auto"`
	} `yaml:"rewrite"`
	CTU struct {
		FactsDir      string `yaml:"facts_dir"`
		MaxIterations int    `yaml:"max_iterations"`
	} `yaml:"ctu"`
	Report struct {
		File  string `yaml:"file"`
		Audit bool   `yaml:"audit"`
	} `yaml:"report"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.CTU.FactsDir = ".intcorrect-facts"
	cfg.CTU.MaxIterations = 10
	return cfg
}

// LoadConfig layers, lowest to highest: defaults, the YAML file, then
// INTCORRECT_* environment variables. A missing default file is not an
// error; an explicitly named file must exist.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	file, err := os.ReadFile(path)
	if err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal(file, cfg); err != nil {
		return nil, err
	}

	// 2. Override with environment variables if present
	if root := os.Getenv("INTCORRECT_PROJECT_ROOT"); root != "" {
		cfg.Project.Root = root
	}
	if dir := os.Getenv("INTCORRECT_FACTS_DIR"); dir != "" {
		cfg.CTU.FactsDir = dir
	}
	if iters := os.Getenv("INTCORRECT_MAX_ITERATIONS"); iters != "" {
		if n, err := strconv.Atoi(iters); err == nil && n > 0 {
			cfg.CTU.MaxIterations = n
		}
	}

	return cfg, nil
}
