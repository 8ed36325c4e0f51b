// Package config loads the client configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from YAML strings like "5s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full client configuration.
type Config struct {
	Chain     ChainConfig     `yaml:"chain"`
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Tokens    TokensConfig    `yaml:"tokens"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Signing   SigningConfig   `yaml:"signing"`
	Server    ServerConfig    `yaml:"server"`
}

type ChainConfig struct {
	ID           string `yaml:"id"`            // custom-json id for contract actions
	NativeSymbol string `yaml:"native_symbol"` // base chain asset
}

type EndpointsConfig struct {
	RPCURL     string `yaml:"rpc_url"`     // side-chain index
	NodeURL    string `yaml:"node_url"`    // base chain condenser API
	PricesURL  string `yaml:"prices_url"`  // native asset price
	RewardsURL string `yaml:"rewards_url"` // staking reward (SCOT) service
	HistoryURL string `yaml:"history_url"` // account history service
	SignerHost string `yaml:"signer_host"` // redirect signer
}

type PeggedTokenConfig struct {
	Symbol  string `yaml:"symbol"`
	Address string `yaml:"address"`
}

type TokensConfig struct {
	Disabled           []string            `yaml:"disabled"`
	PeggedSymbol       string              `yaml:"pegged_symbol"`
	CustodialAccount   string              `yaml:"custodial_account"`
	HighActivitySymbol string              `yaml:"high_activity_symbol"`
	Pegged             []PeggedTokenConfig `yaml:"pegged"`
}

type TrackerConfig struct {
	Attempts int      `yaml:"attempts"`
	Delay    Duration `yaml:"delay"`
}

type SigningConfig struct {
	CallbackWait Duration `yaml:"callback_wait"`
}

type ServerConfig struct {
	Listen          string   `yaml:"listen"`
	RefreshInterval Duration `yaml:"refresh_interval"`
}

// Default returns the production defaults.
func Default() *Config {
	return &Config{
		Chain: ChainConfig{
			ID:           "ssc-mainnet1",
			NativeSymbol: "STEEM",
		},
		Endpoints: EndpointsConfig{
			RPCURL:     "https://api.steem-engine.com/rpc",
			NodeURL:    "https://api.steemit.com",
			PricesURL:  "https://postpromoter.net/api/prices",
			RewardsURL: "https://scot-api.steem-engine.com/",
			HistoryURL: "https://api.steem-engine.com/history",
			SignerHost: "https://steemconnect.com",
		},
		Tokens: TokensConfig{
			PeggedSymbol:       "STEEMP",
			CustodialAccount:   "steem-peg",
			HighActivitySymbol: "AFIT",
			Pegged: []PeggedTokenConfig{
				{Symbol: "STEEMP", Address: "steem-peg"},
			},
		},
		Tracker: TrackerConfig{
			Attempts: 3,
			Delay:    Duration(5 * time.Second),
		},
		Signing: SigningConfig{
			CallbackWait: Duration(10 * time.Second),
		},
		Server: ServerConfig{
			Listen:          ":8080",
			RefreshInterval: Duration(time.Minute),
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path returns the
// defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
