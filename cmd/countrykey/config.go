package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/andreiashu/countrykey"
)

// config holds the settings shared by every subcommand.
type config struct {
	Dir     string // directory of the file store
	Aliases string // YAML file of extra aliases, {ISO2: [alias, ...]}
	Seed    string // YAML or JSON file replacing the built-in seed mapping
}

const (
	envDir     = "COUNTRYKEY_DIR"
	envAliases = "COUNTRYKEY_ALIASES"
	envSeed    = "COUNTRYKEY_SEED"

	defaultDir = ".countrykey"
)

// loadEnv reads an optional .env file. Variables already set in the
// environment take precedence.
func loadEnv(path string) {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: reading %s: %v\n", path, err)
	}
}

// parseConfig parses the global flags, falling back to the environment.
func parseConfig(fs *flag.FlagSet, args []string) (*config, []string, error) {
	cfg := &config{}
	fs.StringVar(&cfg.Dir, "dir", envOr(envDir, defaultDir), "directory holding the persisted mapping")
	fs.StringVar(&cfg.Aliases, "aliases", os.Getenv(envAliases), "YAML file of extra aliases keyed by ISO2")
	fs.StringVar(&cfg.Seed, "seed", os.Getenv(envSeed), "YAML or JSON file replacing the built-in seed mapping")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return cfg, fs.Args(), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// registryOptions turns the alias file, if any, into registry options.
func (c *config) registryOptions() ([]countrykey.Option, error) {
	if c.Aliases == "" {
		return nil, nil
	}
	aliases := map[string][]string{}
	if err := readYAML(c.Aliases, &aliases); err != nil {
		return nil, err
	}
	return []countrykey.Option{countrykey.WithExtraAliases(aliases)}, nil
}

// seedMapping returns the seed applied on every load.
func (c *config) seedMapping() (map[string]string, error) {
	if c.Seed == "" {
		return countrykey.DefaultSeedMapping, nil
	}
	seed := map[string]string{}
	if err := readYAML(c.Seed, &seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// readYAML decodes a YAML file. JSON files decode too, being valid YAML.
func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}
