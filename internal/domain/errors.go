package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a network-related error that may be retriable
type NetworkError struct {
	Op        string // Operation that failed (e.g., "connect", "read", "write")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool {
	return e.Retriable
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new retriable network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// ConfigError represents a configuration error (never retriable)
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return "config error [" + e.Field + "]: " + e.Err.Error()
}

func (e *ConfigError) IsRetriable() bool {
	return false
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// FundError is a rejection raised by the fund. The call that returned it
// had no effect on fund state.
type FundError struct {
	code string
	msg  string
}

func (e *FundError) Error() string { return e.msg }

// Code returns the stable identifier persisted in the command journal.
func (e *FundError) Code() string { return e.code }

func newFundError(code, msg string) *FundError {
	return &FundError{code: code, msg: msg}
}

// Code extracts the FundError code, "OK" for nil and "INTERNAL" otherwise.
func Code(err error) string {
	if err == nil {
		return "OK"
	}
	var fe *FundError
	if errors.As(err, &fe) {
		return fe.Code()
	}
	return "INTERNAL"
}

var (
	// Authorization
	ErrUnauthorized = newFundError("UNAUTHORIZED", "unauthorized")
	ErrNotOwner     = newFundError("NOT_OWNER", "caller is not the owner")

	// Lifecycle gating
	ErrDisabledDuringEpoch        = newFundError("DISABLED_DURING_EPOCH", "disabled during epoch")
	ErrAlreadyStarted             = newFundError("ALREADY_STARTED", "already started")
	ErrAlreadyStopped             = newFundError("ALREADY_STOPPED", "already stopped")
	ErrNotTradingPeriod           = newFundError("NOT_TRADING_PERIOD", "not trading period")
	ErrConfirmTradingStoppedFirst = newFundError("CONFIRM_TRADING_STOPPED_FIRST", "confirm trading stopped first")
	ErrCloseAllPositionsFirst     = newFundError("CLOSE_ALL_POSITIONS_FIRST", "close all positions first")
	ErrAsyncRedeemPending         = newFundError("ASYNC_REDEEM_PENDING", "async redemption pending")
	ErrNoAsyncRedeem              = newFundError("NO_ASYNC_REDEEM", "no async redemption to confirm")
	ErrRedemptionInFlight         = newFundError("REDEMPTION_IN_FLIGHT", "redeemed funds have not arrived")

	// Input validation
	ErrOutOfLimits     = newFundError("OUT_OF_LIMITS", "out of limits")
	ErrMinAmountNotMet = newFundError("MIN_AMOUNT_NOT_MET", "min amount not met")
	ErrWithdrawIsZero  = newFundError("WITHDRAW_IS_ZERO", "withdraw is zero")
	ErrNotEnoughShares = newFundError("NOT_ENOUGH_SHARES", "not enough shares")
	ErrAddressZero     = newFundError("ADDRESS_ZERO", "address can't be 0")
	ErrWrongValue      = newFundError("WRONG_VALUE", "wrong value")
	ErrInvalidFees     = newFundError("INVALID_FEES", "fee above ceiling")
	ErrInvalidLimits   = newFundError("INVALID_LIMITS", "invalid deposit limits")
	ErrInvalidSkim     = newFundError("INVALID_SKIM", "trading skim above 100%")
	ErrZeroShares      = newFundError("ZERO_SHARES", "deposit mints zero shares")

	// Capacity and liquidity
	ErrCapReached            = newFundError("CAP_REACHED", "cap reached")
	ErrNavDepleted           = newFundError("NAV_DEPLETED", "fund has shares but no balance")
	ErrInsufficientLiquidity = newFundError("INSUFFICIENT_LIQUIDITY", "idle balance below payout")
	ErrInsufficientFunds     = newFundError("INSUFFICIENT_FUNDS", "insufficient funds")

	// Authorization proof
	ErrNotAllowed = newFundError("NOT_ALLOWED", "not allowed")

	// Adapter availability
	ErrNoYieldManager    = newFundError("NO_YIELD_MANAGER", "no yield manager")
	ErrNoPositionManager = newFundError("NO_POSITION_MANAGER", "no position manager")
	ErrNoFundsInLending  = newFundError("NO_FUNDS_IN_LENDING", "no funds in lending")

	// Settlement mismatch
	ErrRedeemRequiresNoFunds    = newFundError("REDEEM_REQUIRES_NO_FUNDS", "redeem requires no funds")
	ErrRedeemLocalRequiresFunds = newFundError("REDEEM_LOCAL_REQUIRES_FUNDS", "redeemLocal requires funds")
	ErrUnknownDestination       = newFundError("UNKNOWN_DESTINATION", "no settlement path to destination")

	// Safety rails
	ErrNoRug          = newFundError("NO_RUG", "no rug")
	ErrReentrantCall  = newFundError("REENTRANT_CALL", "reentrant call")
	ErrUnknownCommand = newFundError("UNKNOWN_COMMAND", "unknown command")
	ErrUnknownVenue   = newFundError("UNKNOWN_VENUE", "unknown venue")
)

var (
	// ErrConfigNotFound is returned when configuration file is missing
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrSnapshotNotFound is returned when no fund snapshot has been persisted yet
	ErrSnapshotNotFound = errors.New("snapshot not found")
)
