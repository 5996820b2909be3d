package infra

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"epoch_vault/internal/domain"
	"epoch_vault/pkg/quant"

	"github.com/caarlos0/env/v11"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where the daemon looks for its configuration.
const DefaultConfigPath = "configs/config.yaml"

// Config holds every setting of the vault daemon.
// Monetary amounts are decimal strings in whole units of the accounting asset;
// native fees are integers in native base units.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Fund struct {
		Address           string          `yaml:"address"`
		Token             string          `yaml:"token"`
		Decimals          int32           `yaml:"decimals"`
		Cap               decimal.Decimal `yaml:"cap"`
		MinDeposit        decimal.Decimal `yaml:"min_deposit"`
		MaxDeposit        decimal.Decimal `yaml:"max_deposit"`
		Owner             string          `yaml:"owner"`
		Manager           string          `yaml:"manager"`
		FeeRecipient      string          `yaml:"fee_recipient"`
		Signer            string          `yaml:"signer"`
		ManagementFeeBps  int64           `yaml:"management_fee_bps"`
		PerformanceFeeBps int64           `yaml:"performance_fee_bps"`
		TradingSkimBps    int64           `yaml:"trading_skim_bps"`
		FeeMode           string          `yaml:"fee_mode"`
	} `yaml:"fund"`

	Venues struct {
		Yield   YieldVenueConfig   `yaml:"yield"`
		Trading TradingVenueConfig `yaml:"trading"`
	} `yaml:"venues"`

	Engine struct {
		InboxSize     int    `yaml:"inbox_size"`
		DumpPath      string `yaml:"dump_path"`
		SnapshotsKept int    `yaml:"snapshots_kept"`
	} `yaml:"engine"`

	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`

	Bridge struct {
		URL         string `yaml:"url"`
		AutoConfirm bool   `yaml:"auto_confirm"`
	} `yaml:"bridge"`

	Keeper struct {
		HarvestSchedule string `yaml:"harvest_schedule"`
		Autocompound    bool   `yaml:"autocompound"`
	} `yaml:"keeper"`

	API struct {
		Addr string `yaml:"addr"`
	} `yaml:"api"`

	Simulation struct {
		Enabled bool             `yaml:"enabled"`
		Genesis []GenesisBalance `yaml:"genesis"`
	} `yaml:"simulation"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`

	// SignerKey is the hex private key of the allow-list signer. Env only.
	SignerKey string `yaml:"-"`
}

// YieldVenueConfig configures the paper yield venue. An empty name leaves it unset.
type YieldVenueConfig struct {
	Name             string           `yaml:"name"`
	Address          string           `yaml:"address"`
	BridgeAddress    string           `yaml:"bridge_address"`
	LPAsset          string           `yaml:"lp_asset"`
	RewardAsset      string           `yaml:"reward_asset"`
	RewardPrice      decimal.Decimal  `yaml:"reward_price"`
	Mode             string           `yaml:"mode"`
	InstantLiquidity decimal.Decimal  `yaml:"instant_liquidity"`
	RedeemFee        int64            `yaml:"redeem_fee"`
	RedeemFeeByChain map[uint64]int64 `yaml:"redeem_fee_by_chain"`
}

// TradingVenueConfig configures the paper trading desk. An empty name leaves it unset.
type TradingVenueConfig struct {
	Name              string          `yaml:"name"`
	Address           string          `yaml:"address"`
	Keeper            string          `yaml:"keeper"`
	KeeperFee         int64           `yaml:"keeper_fee"`
	MinPositionAmount decimal.Decimal `yaml:"min_position_amount"`
}

// GenesisBalance seeds the paper ledger on first boot.
type GenesisBalance struct {
	Holder string          `yaml:"holder"`
	Asset  string          `yaml:"asset"`
	Amount decimal.Decimal `yaml:"amount"`
}

// envOverrides are the settings that may come from the environment.
type envOverrides struct {
	DBPath    string `env:"VAULT_DB_PATH"`
	LogLevel  string `env:"VAULT_LOG_LEVEL"`
	BridgeURL string `env:"VAULT_BRIDGE_URL"`
	APIAddr   string `env:"VAULT_API_ADDR"`
	SignerKey string `env:"VAULT_SIGNER_KEY"`
}

// LoadConfig reads and parses the configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML document, applies defaults and environment
// overrides, and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	// Secrets and deployment paths come from the environment.
	if err := overrideWithEnv(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "epoch-vault"
	}
	if c.Fund.FeeMode == "" {
		c.Fund.FeeMode = string(domain.FeeModeShares)
	}
	if c.Engine.InboxSize <= 0 {
		c.Engine.InboxSize = 256
	}
	if c.Engine.DumpPath == "" {
		c.Engine.DumpPath = "panic_dump.json"
	}
	if c.Engine.SnapshotsKept <= 0 {
		c.Engine.SnapshotsKept = 100
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
	if c.Venues.Yield.Mode == "" {
		c.Venues.Yield.Mode = "sync"
	}
}

func overrideWithEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	if o.DBPath != "" {
		cfg.Storage.DBPath = o.DBPath
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.BridgeURL != "" {
		cfg.Bridge.URL = o.BridgeURL
	}
	if o.APIAddr != "" {
		cfg.API.Addr = o.APIAddr
	}
	if o.SignerKey != "" {
		cfg.SignerKey = o.SignerKey
	}
	return nil
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if _, err := c.ToFundConfig(); err != nil {
		return err
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if y := c.Venues.Yield; y.Name != "" {
		if _, err := c.YieldVenue(); err != nil {
			return err
		}
	}
	if t := c.Venues.Trading; t.Name != "" {
		if _, err := c.TradingVenue(); err != nil {
			return err
		}
	}

	if c.Bridge.URL != "" && !strings.HasPrefix(c.Bridge.URL, "ws://") && !strings.HasPrefix(c.Bridge.URL, "wss://") {
		return fmt.Errorf("invalid bridge URL: %s", c.Bridge.URL)
	}
	if c.Bridge.AutoConfirm && c.Bridge.URL == "" {
		return fmt.Errorf("bridge.auto_confirm requires bridge.url")
	}

	if c.Keeper.HarvestSchedule != "" {
		if _, err := cron.ParseStandard(c.Keeper.HarvestSchedule); err != nil {
			return fmt.Errorf("invalid keeper schedule %q: %w", c.Keeper.HarvestSchedule, err)
		}
	}

	if c.SignerKey != "" {
		key, err := ParseSignerKey(c.SignerKey)
		if err != nil {
			return err
		}
		signer := crypto.PubkeyToAddress(key.PublicKey)
		if c.Fund.Signer != "" && common.HexToAddress(c.Fund.Signer) != signer {
			return fmt.Errorf("signer key belongs to %s, fund.signer is %s", signer.Hex(), c.Fund.Signer)
		}
	}

	for i, g := range c.Simulation.Genesis {
		if !common.IsHexAddress(g.Holder) {
			return fmt.Errorf("simulation.genesis[%d]: invalid holder %q", i, g.Holder)
		}
		if g.Amount.IsNegative() {
			return fmt.Errorf("simulation.genesis[%d]: negative amount", i)
		}
	}
	return nil
}

// ToFundConfig converts the fund section into base units.
func (c *Config) ToFundConfig() (domain.FundConfig, error) {
	f := c.Fund
	out := domain.FundConfig{
		Token:             f.Token,
		Decimals:          f.Decimals,
		ManagementFeeBps:  f.ManagementFeeBps,
		PerformanceFeeBps: f.PerformanceFeeBps,
		TradingSkimBps:    f.TradingSkimBps,
		FeeMode:           domain.FeeMode(f.FeeMode),
	}

	var err error
	addrs := []struct {
		field string
		raw   string
		dst   *common.Address
		opt   bool
	}{
		{"fund.address", f.Address, &out.Address, false},
		{"fund.owner", f.Owner, &out.Owner, false},
		{"fund.manager", f.Manager, &out.Manager, false},
		{"fund.fee_recipient", f.FeeRecipient, &out.FeeRecipient, false},
		{"fund.signer", f.Signer, &out.Signer, true},
	}
	for _, a := range addrs {
		if a.opt && a.raw == "" {
			continue
		}
		if *a.dst, err = parseAddress(a.field, a.raw); err != nil {
			return domain.FundConfig{}, err
		}
	}

	amounts := []struct {
		field string
		raw   decimal.Decimal
		dst   *int64
	}{
		{"fund.cap", f.Cap, &out.Cap},
		{"fund.min_deposit", f.MinDeposit, &out.MinDeposit},
		{"fund.max_deposit", f.MaxDeposit, &out.MaxDeposit},
	}
	for _, a := range amounts {
		if *a.dst, err = quant.ParseUnits(a.raw, f.Decimals); err != nil {
			return domain.FundConfig{}, &domain.ConfigError{Field: a.field, Err: err}
		}
	}

	if err := out.Validate(); err != nil {
		return domain.FundConfig{}, err
	}
	return out, nil
}

// YieldVenue converts the yield venue section.
func (c *Config) YieldVenue() (YieldVenue, error) {
	y := c.Venues.Yield
	out := YieldVenue{
		Name:             y.Name,
		LPAsset:          y.LPAsset,
		RewardAsset:      y.RewardAsset,
		Mode:             y.Mode,
		RedeemFee:        y.RedeemFee,
		RedeemFeeByChain: y.RedeemFeeByChain,
	}
	var err error
	if out.Address, err = parseAddress("venues.yield.address", y.Address); err != nil {
		return YieldVenue{}, err
	}
	if out.BridgeAddress, err = parseAddress("venues.yield.bridge_address", y.BridgeAddress); err != nil {
		return YieldVenue{}, err
	}
	if y.LPAsset == "" {
		return YieldVenue{}, &domain.ConfigError{Field: "venues.yield.lp_asset", Err: fmt.Errorf("required")}
	}
	switch y.Mode {
	case "sync", "async", "auto":
	default:
		return YieldVenue{}, &domain.ConfigError{Field: "venues.yield.mode", Err: fmt.Errorf("unknown mode %q", y.Mode)}
	}
	if y.RewardPrice.IsNegative() {
		return YieldVenue{}, &domain.ConfigError{Field: "venues.yield.reward_price", Err: fmt.Errorf("negative price")}
	}
	out.RewardPrice = y.RewardPrice.Mul(decimal.NewFromInt(quant.PriceScale)).IntPart()
	if out.InstantLiquidity, err = quant.ParseUnits(y.InstantLiquidity, c.Fund.Decimals); err != nil {
		return YieldVenue{}, &domain.ConfigError{Field: "venues.yield.instant_liquidity", Err: err}
	}
	return out, nil
}

// TradingVenue converts the trading venue section.
func (c *Config) TradingVenue() (TradingVenue, error) {
	t := c.Venues.Trading
	out := TradingVenue{Name: t.Name, KeeperFee: t.KeeperFee}
	var err error
	if out.Address, err = parseAddress("venues.trading.address", t.Address); err != nil {
		return TradingVenue{}, err
	}
	if out.Keeper, err = parseAddress("venues.trading.keeper", t.Keeper); err != nil {
		return TradingVenue{}, err
	}
	if t.KeeperFee < 0 {
		return TradingVenue{}, &domain.ConfigError{Field: "venues.trading.keeper_fee", Err: fmt.Errorf("negative fee")}
	}
	if out.MinPositionAmount, err = quant.ParseUnits(t.MinPositionAmount, c.Fund.Decimals); err != nil {
		return TradingVenue{}, &domain.ConfigError{Field: "venues.trading.min_position_amount", Err: err}
	}
	return out, nil
}

// YieldVenue is the yield venue section in base units.
type YieldVenue struct {
	Name             string
	Address          common.Address
	BridgeAddress    common.Address
	LPAsset          string
	RewardAsset      string
	RewardPrice      int64
	Mode             string
	InstantLiquidity int64
	RedeemFee        int64
	RedeemFeeByChain map[uint64]int64
}

// TradingVenue is the trading venue section in base units.
type TradingVenue struct {
	Name              string
	Address           common.Address
	Keeper            common.Address
	KeeperFee         int64
	MinPositionAmount int64
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, &domain.ConfigError{Field: field, Err: fmt.Errorf("invalid address %q", raw)}
	}
	return common.HexToAddress(raw), nil
}

// ParseSignerKey decodes a hex secp256k1 private key, with or without 0x.
func ParseSignerKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X"))
	if err != nil {
		return nil, &domain.ConfigError{Field: "VAULT_SIGNER_KEY", Err: err}
	}
	return key, nil
}
