package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Fee ceilings enforced by the fee setter.
const (
	MaxManagementFeeBps  int64 = 500
	MaxPerformanceFeeBps int64 = 3000
)

// FeeMode selects how fees are taken from the fund.
type FeeMode string

const (
	// FeeModeShares mints new shares to the fee recipient.
	FeeModeShares FeeMode = "shares"
	// FeeModeAsset transfers the accounting asset to the fee recipient.
	FeeModeAsset FeeMode = "asset"
)

// Validate checks the fee mode is known.
func (m FeeMode) Validate() error {
	switch m {
	case FeeModeShares, FeeModeAsset:
		return nil
	default:
		return fmt.Errorf("unknown fee mode %q", string(m))
	}
}

// FundConfig holds the singleton fund attributes.
// All amounts are base units of Token.
type FundConfig struct {
	Address           common.Address `json:"address"`
	Token             string         `json:"token"`
	Decimals          int32          `json:"decimals"`
	Cap               int64          `json:"cap"`
	MinDeposit        int64          `json:"min_deposit"`
	MaxDeposit        int64          `json:"max_deposit"`
	Owner             common.Address `json:"owner"`
	Manager           common.Address `json:"manager"`
	FeeRecipient      common.Address `json:"fee_recipient"`
	Signer            common.Address `json:"signer"`
	ManagementFeeBps  int64          `json:"management_fee_bps"`
	PerformanceFeeBps int64          `json:"performance_fee_bps"`
	TradingSkimBps    int64          `json:"trading_skim_bps"`
	FeeMode           FeeMode        `json:"fee_mode"`
}

// Validate checks construction-time constraints.
func (c FundConfig) Validate() error {
	if c.Address == (common.Address{}) {
		return &ConfigError{Field: "address", Err: ErrAddressZero}
	}
	if c.Token == "" {
		return &ConfigError{Field: "token", Err: fmt.Errorf("token is required")}
	}
	if c.Owner == (common.Address{}) {
		return &ConfigError{Field: "owner", Err: ErrAddressZero}
	}
	if c.Manager == (common.Address{}) {
		return &ConfigError{Field: "manager", Err: ErrAddressZero}
	}
	if c.FeeRecipient == (common.Address{}) {
		return &ConfigError{Field: "fee_recipient", Err: ErrAddressZero}
	}
	if c.MinDeposit < 0 || c.MinDeposit > c.MaxDeposit {
		return &ConfigError{Field: "deposit_limits", Err: ErrInvalidLimits}
	}
	if c.Cap < 0 {
		return &ConfigError{Field: "cap", Err: fmt.Errorf("cap must not be negative")}
	}
	if err := ValidateFees(c.ManagementFeeBps, c.PerformanceFeeBps); err != nil {
		return &ConfigError{Field: "fees", Err: err}
	}
	if c.TradingSkimBps < 0 || c.TradingSkimBps > 10_000 {
		return &ConfigError{Field: "trading_skim_bps", Err: ErrInvalidSkim}
	}
	if err := c.FeeMode.Validate(); err != nil {
		return &ConfigError{Field: "fee_mode", Err: err}
	}
	return nil
}

// ValidateFees enforces the fee ceilings.
func ValidateFees(managementBps, performanceBps int64) error {
	if managementBps < 0 || managementBps > MaxManagementFeeBps {
		return ErrInvalidFees
	}
	if performanceBps < 0 || performanceBps > MaxPerformanceFeeBps {
		return ErrInvalidFees
	}
	return nil
}
