// Package config loads the indexer's TOML configuration file and
// applies environment-variable overrides, the same file-then-env
// precedence cmd/utils/flags.go applies over klaytn's node config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/naoina/toml"
)

// ChainConfig is the resolved, per-chain configuration: registry
// defaults overridden by chain.<name>.* fields (§6).
type ChainConfig struct {
	Chain          Chain
	URL            string
	PollInterval   time.Duration
	AwaitBlocks    uint64
	OutdatedWindow time.Duration
}

// Config is the fully resolved process configuration.
type Config struct {
	PostgresURL string
	RabbitMQURL string
	BatchSize   int
	Chains      map[Chain]ChainConfig
}

// rawChain mirrors the TOML shape of a chain.<name> table.
type rawChain struct {
	URL     string `toml:"url"`
	Poll    int    `toml:"poll_secs"`
	Await   *uint64 `toml:"await"`
	Outdate int    `toml:"outdated"`
}

type rawPostgres struct {
	URL string `toml:"url"`
}

type rawRabbitMQ struct {
	URL string `toml:"url"`
}

type rawParser struct {
	BatchSize int `toml:"batch_size"`
}

type rawConfig struct {
	Postgres rawPostgres          `toml:"postgres"`
	RabbitMQ rawRabbitMQ          `toml:"rabbitmq"`
	Parser   rawParser            `toml:"parser"`
	Chain    map[string]rawChain `toml:"chain"`
}

const defaultBatchSize = 300

// Load reads path (a TOML file matching §6's field names) and layers
// environment-variable overrides on top. path may be empty, in which
// case only the registry defaults and environment apply.
func Load(path string) (*Config, error) {
	raw := rawConfig{Parser: rawParser{BatchSize: defaultBatchSize}}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %s: %w", path, err)
		}
		defer f.Close()
		if err := toml.NewDecoder(f).Decode(&raw); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	cfg := &Config{
		PostgresURL: firstNonEmpty(os.Getenv("CHAIN_INDEXER_POSTGRES_URL"), raw.Postgres.URL),
		RabbitMQURL: firstNonEmpty(os.Getenv("CHAIN_INDEXER_RABBITMQ_URL"), raw.RabbitMQ.URL),
		BatchSize:   intOrDefault(os.Getenv("CHAIN_INDEXER_BATCH_SIZE"), raw.Parser.BatchSize),
		Chains:      map[Chain]ChainConfig{},
	}

	for _, chain := range AllChains() {
		defaults := DefaultFor(chain)
		cc := ChainConfig{
			Chain:          chain,
			PollInterval:   defaults.PollInterval,
			AwaitBlocks:    defaults.AwaitBlocks,
			OutdatedWindow: defaults.OutdatedWindow,
		}
		if rc, ok := raw.Chain[string(chain)]; ok {
			if rc.URL != "" {
				cc.URL = rc.URL
			}
			if rc.Poll > 0 {
				cc.PollInterval = time.Duration(rc.Poll) * time.Second
			}
			if rc.Await != nil {
				cc.AwaitBlocks = *rc.Await
			}
			if rc.Outdate > 0 {
				cc.OutdatedWindow = time.Duration(rc.Outdate) * time.Second
			}
		}
		if url := os.Getenv("CHAIN_INDEXER_CHAIN_" + envKey(string(chain)) + "_URL"); url != "" {
			cc.URL = url
		}
		cfg.Chains[chain] = cc
	}

	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("config: postgres.url is required")
	}
	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("config: rabbitmq.url is required")
	}
	return cfg, nil
}

// Configured returns the chains that have a non-empty RPC URL, i.e.
// the set the Consumer Runner actually starts tasks for (§4.6:
// "chains that do not implement a capability are simply not
// started" — here narrowed further to chains the operator configured).
func (c *Config) Configured() []ChainConfig {
	out := make([]ChainConfig, 0, len(c.Chains))
	for _, cc := range c.Chains {
		if cc.URL != "" {
			out = append(out, cc)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func intOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func envKey(chain string) string {
	out := make([]byte, len(chain))
	for i := 0; i < len(chain); i++ {
		c := chain[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
