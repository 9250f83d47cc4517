package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Contracts holds the deployed addresses of the marketplace contract suite.
// The client treats them as opaque constants; it never deploys or upgrades.
type Contracts struct {
	PropertyListing string `toml:"PropertyListing"`
	RentalAgreement string `toml:"RentalAgreement"`
	Escrow          string `toml:"Escrow"`
}

// Config captures runtime configuration for the rentchain client stack.
type Config struct {
	RPCEndpoint     string    `toml:"RPCEndpoint"`
	ChainID         int64     `toml:"ChainID"`
	IPFSGateway     string    `toml:"IPFSGateway"`
	PinningEndpoint string    `toml:"PinningEndpoint"`
	PinningAPIKey   string    `toml:"PinningAPIKey"`
	PinningSecret   string    `toml:"PinningSecret"`
	KeystorePath    string    `toml:"KeystorePath"`
	Contracts       Contracts `toml:"Contracts"`
	ConfirmTimeout  duration  `toml:"ConfirmTimeout"`
}

// duration wraps time.Duration so TOML files can use "90s" style values.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

const defaultConfirmTimeout = 2 * time.Minute

// Load reads and validates the configuration at path.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.ConfirmTimeout.Duration <= 0 {
		c.ConfirmTimeout.Duration = defaultConfirmTimeout
	}
	if strings.TrimSpace(c.IPFSGateway) == "" {
		if env := strings.TrimSpace(os.Getenv("RENTCHAIN_IPFS_GATEWAY")); env != "" {
			c.IPFSGateway = env
		}
	}
	c.IPFSGateway = strings.TrimRight(strings.TrimSpace(c.IPFSGateway), "/")
	c.PinningEndpoint = strings.TrimRight(strings.TrimSpace(c.PinningEndpoint), "/")
	return nil
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCEndpoint) == "" {
		return fmt.Errorf("config: RPCEndpoint is required")
	}
	if c.ChainID <= 0 {
		return fmt.Errorf("config: ChainID must be positive, got %d", c.ChainID)
	}
	if c.IPFSGateway == "" {
		return fmt.Errorf("config: IPFSGateway is required")
	}
	for name, addr := range map[string]string{
		"Contracts.PropertyListing": c.Contracts.PropertyListing,
		"Contracts.RentalAgreement": c.Contracts.RentalAgreement,
		"Contracts.Escrow":          c.Contracts.Escrow,
	} {
		trimmed := strings.TrimSpace(addr)
		if trimmed == "" {
			return fmt.Errorf("config: %s is required", name)
		}
		if !common.IsHexAddress(trimmed) {
			return fmt.Errorf("config: %s is not a hex address: %q", name, addr)
		}
	}
	return nil
}

// PropertyListingAddress returns the parsed property listing contract address.
func (c *Config) PropertyListingAddress() common.Address {
	return common.HexToAddress(c.Contracts.PropertyListing)
}

// RentalAgreementAddress returns the parsed rental agreement contract address.
func (c *Config) RentalAgreementAddress() common.Address {
	return common.HexToAddress(c.Contracts.RentalAgreement)
}

// EscrowAddress returns the parsed escrow contract address.
func (c *Config) EscrowAddress() common.Address {
	return common.HexToAddress(c.Contracts.Escrow)
}

// Confirm returns the bounded wait applied to transaction confirmation.
func (c *Config) Confirm() time.Duration {
	if c.ConfirmTimeout.Duration <= 0 {
		return defaultConfirmTimeout
	}
	return c.ConfirmTimeout.Duration
}
