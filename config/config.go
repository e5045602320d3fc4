package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/holiman/uint256"

	"nftmarket/core/types"
	"nftmarket/native/royalty"
)

// RoyaltyStep is one configured step of the royalty structure. Kind is one of
// "minimum", "flat" or "percentage"; Amount is the floor, the constant fee or
// the basis points respectively, as a decimal string.
type RoyaltyStep struct {
	Kind   string `toml:"Kind"`
	Amount string `toml:"Amount"`
}

// Pauses holds the administrative halt switches for the native modules. A
// paused module rejects every mutating call until the daemon is restarted
// with the switch cleared.
type Pauses struct {
	Market  bool `toml:"Market"`
	Custody bool `toml:"Custody"`
}

// IsPaused reports whether the named module is halted.
func (p Pauses) IsPaused(module string) bool {
	switch module {
	case "market":
		return p.Market
	case "custody":
		return p.Custody
	default:
		return false
	}
}

// ReferenceContract declares an in-process token contract the daemon deploys
// at boot. Enforced marks a registry as consulting the custodial transfer
// filter; it is ignored for fungible ledgers.
type ReferenceContract struct {
	Address  string `toml:"Address"`
	Enforced bool   `toml:"Enforced,omitempty"`
}

type Config struct {
	RPCAddress            string              `toml:"RPCAddress"`
	DataDir               string              `toml:"DataDir"`
	Environment           string              `toml:"Environment"`
	LogLevel              string              `toml:"LogLevel"`
	ManagerAddress        string              `toml:"ManagerAddress"`
	RoyaltyAccount        string              `toml:"RoyaltyAccount"`
	MarketAddress         string              `toml:"MarketAddress"`
	CustodyAddress        string              `toml:"CustodyAddress"`
	MarketplaceWhitelist  []string            `toml:"MarketplaceWhitelist"`
	PaymentTokenWhitelist []string            `toml:"PaymentTokenWhitelist"`
	RoyaltySteps          []RoyaltyStep       `toml:"RoyaltySteps"`
	Ledgers               []ReferenceContract `toml:"Ledgers"`
	Collections           []ReferenceContract `toml:"Collections"`
	Pauses                Pauses              `toml:"Pauses"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8545"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./market-data"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if c.MarketplaceWhitelist == nil {
		c.MarketplaceWhitelist = []string{}
	}
	if c.PaymentTokenWhitelist == nil {
		c.PaymentTokenWhitelist = []string{}
	}
}

// Validate checks that every configured address and royalty step parses.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"ManagerAddress": c.ManagerAddress,
		"RoyaltyAccount": c.RoyaltyAccount,
		"MarketAddress":  c.MarketAddress,
		"CustodyAddress": c.CustodyAddress,
	} {
		if strings.TrimSpace(raw) == "" {
			return fmt.Errorf("config: %s must be set", name)
		}
		if _, err := types.ParseAddress(raw); err != nil {
			return fmt.Errorf("config: invalid %s: %w", name, err)
		}
	}
	if _, err := parseAddresses(c.MarketplaceWhitelist); err != nil {
		return fmt.Errorf("config: invalid MarketplaceWhitelist entry: %w", err)
	}
	if _, err := parseAddresses(c.PaymentTokenWhitelist); err != nil {
		return fmt.Errorf("config: invalid PaymentTokenWhitelist entry: %w", err)
	}
	for _, ref := range append(append([]ReferenceContract{}, c.Ledgers...), c.Collections...) {
		if _, err := types.ParseAddress(ref.Address); err != nil {
			return fmt.Errorf("config: invalid reference contract address: %w", err)
		}
	}
	if _, err := c.Structure(); err != nil {
		return err
	}
	return nil
}

// Manager returns the parsed manager key address.
func (c *Config) Manager() (types.Address, error) {
	return types.ParseAddress(c.ManagerAddress)
}

// Royalty returns the parsed royalty accrual account.
func (c *Config) Royalty() (types.Address, error) {
	return types.ParseAddress(c.RoyaltyAccount)
}

// Market returns the marketplace contract identity.
func (c *Config) Market() (types.Address, error) {
	return types.ParseAddress(c.MarketAddress)
}

// Custody returns the custodial layer contract identity.
func (c *Config) Custody() (types.Address, error) {
	return types.ParseAddress(c.CustodyAddress)
}

// Marketplaces returns the parsed marketplace whitelist. An empty list
// disables the whitelist gate.
func (c *Config) Marketplaces() ([]types.Address, error) {
	return parseAddresses(c.MarketplaceWhitelist)
}

// PaymentTokens returns the parsed payment token whitelist.
func (c *Config) PaymentTokens() ([]types.Address, error) {
	return parseAddresses(c.PaymentTokenWhitelist)
}

// Structure builds the royalty structure from the configured steps.
func (c *Config) Structure() (royalty.Structure, error) {
	steps := make([]royalty.Step, 0, len(c.RoyaltySteps))
	for i, step := range c.RoyaltySteps {
		amount, err := uint256.FromDecimal(strings.TrimSpace(step.Amount))
		if err != nil {
			return royalty.Structure{}, fmt.Errorf("config: royalty step %d has invalid amount %q: %w", i, step.Amount, err)
		}
		switch strings.ToLower(strings.TrimSpace(step.Kind)) {
		case "minimum":
			steps = append(steps, royalty.MinimumStep(amount))
		case "flat":
			steps = append(steps, royalty.FlatStep(amount))
		case "percentage":
			steps = append(steps, royalty.PercentageStep(amount))
		default:
			return royalty.Structure{}, fmt.Errorf("config: royalty step %d has unknown kind %q", i, step.Kind)
		}
	}
	return royalty.NewStructure(steps...), nil
}

func parseAddresses(raw []string) ([]types.Address, error) {
	parsed := make([]types.Address, 0, len(raw))
	for _, entry := range raw {
		addr, err := types.ParseAddress(entry)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, addr)
	}
	return parsed, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:            ":8545",
		DataDir:               "./market-data",
		Environment:           "local",
		LogLevel:              "info",
		ManagerAddress:        zeroPadded(0xAA),
		RoyaltyAccount:        zeroPadded(0xFE),
		MarketAddress:         zeroPadded(0xB0),
		CustodyAddress:        zeroPadded(0xC0),
		MarketplaceWhitelist:  []string{},
		PaymentTokenWhitelist: []string{},
		RoyaltySteps: []RoyaltyStep{
			{Kind: "percentage", Amount: "500"},
		},
	}

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func zeroPadded(b byte) string {
	var addr types.Address
	addr[19] = b
	return addr.Hex()
}
