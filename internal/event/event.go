// Package event defines what enters the sequencer: fund commands submitted
// by participants and operators, and settlement notices from the bridge.
package event

import (
	"epoch_vault/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Type identifies an event.
type Type string

// Fund commands.
const (
	TypeDeposit             Type = "DEPOSIT"
	TypeWithdraw            Type = "WITHDRAW"
	TypeWithdrawAll         Type = "WITHDRAW_ALL"
	TypeStart               Type = "START"
	TypeOpenPosition        Type = "OPEN_POSITION"
	TypeClosePosition       Type = "CLOSE_POSITION"
	TypeConfirmTradesClosed Type = "CONFIRM_TRADES_CLOSED"
	TypeHarvest             Type = "HARVEST"
	TypeStop                Type = "STOP"
	TypeConfirmAsyncRedeem  Type = "CONFIRM_ASYNC_REDEEM"
	TypeSetCap              Type = "SET_CAP"
	TypeSetFees             Type = "SET_FEES"
	TypeSetDepositLimits    Type = "SET_DEPOSIT_LIMITS"
	TypeSetManager          Type = "SET_MANAGER"
	TypeSetFeeRecipient     Type = "SET_FEE_RECIPIENT"
	TypeSetSigner           Type = "SET_SIGNER"
	TypeSetTradingSkim      Type = "SET_TRADING_SKIM"
	TypeSetYieldAdapter     Type = "SET_YIELD_ADAPTER"
	TypeSetTradingAdapter   Type = "SET_TRADING_ADAPTER"
	TypeRescue              Type = "RESCUE"
)

// TypeRedeemSettled is the bridge announcing an async redemption arrived.
const TypeRedeemSettled Type = "REDEEM_SETTLED"

// Paper-world simulation, accepted only when the daemon runs paper venues.
const (
	TypeSimMint          Type = "SIM_MINT"           // faucet: Amount of Asset to Holder
	TypeSimAccrue        Type = "SIM_ACCRUE"         // yield venue earns Amount
	TypeSimAccrueRewards Type = "SIM_ACCRUE_REWARDS" // yield venue emits Amount reward tokens
	TypeSimSetPnL        Type = "SIM_SET_PNL"        // trading position (Market, IsLong) marked at Amount
)

var commandTypes = map[Type]struct{}{
	TypeDeposit: {}, TypeWithdraw: {}, TypeWithdrawAll: {}, TypeStart: {},
	TypeOpenPosition: {}, TypeClosePosition: {}, TypeConfirmTradesClosed: {},
	TypeHarvest: {}, TypeStop: {}, TypeConfirmAsyncRedeem: {},
	TypeSetCap: {}, TypeSetFees: {}, TypeSetDepositLimits: {}, TypeSetManager: {},
	TypeSetFeeRecipient: {}, TypeSetSigner: {}, TypeSetTradingSkim: {},
	TypeSetYieldAdapter: {}, TypeSetTradingAdapter: {}, TypeRescue: {},
}

// Event is anything the sequencer processes.
type Event interface {
	GetSeq() uint64
	SetSeq(seq uint64)
	GetTs() int64
	SetTs(ts int64)
	GetType() Type
}

// BaseEvent carries the sequence number assigned by the sequencer and the
// submission time in unix milliseconds.
type BaseEvent struct {
	Seq uint64 `json:"seq"`
	Ts  int64  `json:"ts"`
}

func (e *BaseEvent) GetSeq() uint64    { return e.Seq }
func (e *BaseEvent) SetSeq(seq uint64) { e.Seq = seq }
func (e *BaseEvent) GetTs() int64      { return e.Ts }
func (e *BaseEvent) SetTs(ts int64)    { e.Ts = ts }

// Command is one fund call. Only the fields its Type uses are set.
type Command struct {
	BaseEvent
	ID     string         `json:"id"`
	Kind   Type           `json:"type"`
	Caller common.Address `json:"caller"`

	Amount          int64          `json:"amount,omitempty"`
	Shares          int64          `json:"shares,omitempty"`
	Proof           hexutil.Bytes  `json:"proof,omitempty"`
	Market          string         `json:"market,omitempty"`
	IsLong          bool           `json:"is_long,omitempty"`
	NativeFee       int64          `json:"native_fee,omitempty"`
	Autocompound    bool           `json:"autocompound,omitempty"`
	SettlementParam uint64         `json:"settlement_param,omitempty"`
	Target          common.Address `json:"target,omitempty"`
	Asset           string         `json:"asset,omitempty"`
	ManagementBps   int64          `json:"management_bps,omitempty"`
	PerformanceBps  int64          `json:"performance_bps,omitempty"`
	MinDeposit      int64          `json:"min_deposit,omitempty"`
	MaxDeposit      int64          `json:"max_deposit,omitempty"`
	Bps             int64          `json:"bps,omitempty"`
	Adapter         string         `json:"adapter,omitempty"`
}

func (c *Command) GetType() Type { return c.Kind }

// Validate rejects command types the fund does not know.
func (c *Command) Validate() error {
	if _, ok := commandTypes[c.Kind]; !ok {
		return domain.ErrUnknownCommand
	}
	return nil
}

// RedeemSettledEvent reports that the bridge delivered an async redemption.
type RedeemSettledEvent struct {
	BaseEvent
	TxID     string `json:"tx_id"`
	Amount   int64  `json:"amount"`
	DstChain uint64 `json:"dst_chain"`
}

func (e *RedeemSettledEvent) GetType() Type { return TypeRedeemSettled }

// SimulationEvent drives the paper venues.
type SimulationEvent struct {
	BaseEvent
	Kind   Type           `json:"type"`
	Asset  string         `json:"asset,omitempty"`
	Holder common.Address `json:"holder,omitempty"`
	Amount int64          `json:"amount"`
	Market string         `json:"market,omitempty"`
	IsLong bool           `json:"is_long,omitempty"`
}

func (e *SimulationEvent) GetType() Type { return e.Kind }

// IsSimulation reports whether t is a simulation event type.
func IsSimulation(t Type) bool {
	switch t {
	case TypeSimMint, TypeSimAccrue, TypeSimAccrueRewards, TypeSimSetPnL:
		return true
	}
	return false
}

// Result is the outcome of a processed command.
type Result struct {
	Seq   uint64 `json:"seq"`
	Value int64  `json:"value"` // shares minted, payout, harvest proceeds or rescued amount
	Err   error  `json:"-"`
}
