package infra

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"epoch_vault/internal/domain"
	"epoch_vault/pkg/quant"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

const testConfig = `
app:
  name: test-vault
fund:
  address: "0x00000000000000000000000000000000000000f0"
  token: USDC
  decimals: 6
  cap: "1000000"
  min_deposit: "10.5"
  max_deposit: "50000"
  owner: "0x0000000000000000000000000000000000000001"
  manager: "0x0000000000000000000000000000000000000002"
  fee_recipient: "0x0000000000000000000000000000000000000003"
  management_fee_bps: 200
  performance_fee_bps: 2000
  trading_skim_bps: 2000
venues:
  yield:
    name: stargate
    address: "0x00000000000000000000000000000000000000b1"
    bridge_address: "0x00000000000000000000000000000000000000b2"
    lp_asset: S*USDC
    reward_asset: STG
    reward_price: "0.45"
    mode: auto
    instant_liquidity: "25000"
    redeem_fee: 10
    redeem_fee_by_chain:
      110: 25
  trading:
    name: gmx
    address: "0x00000000000000000000000000000000000000c1"
    keeper: "0x00000000000000000000000000000000000000c2"
    keeper_fee: 2
    min_position_amount: "10"
keeper:
  harvest_schedule: "*/15 * * * *"
logging:
  level: info
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(testConfig))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	fc, err := cfg.ToFundConfig()
	if err != nil {
		t.Fatalf("ToFundConfig failed: %v", err)
	}
	if fc.Cap != 1_000_000_000_000 {
		t.Errorf("Expected cap 1e12 base units, got %d", fc.Cap)
	}
	if fc.MinDeposit != 10_500_000 {
		t.Errorf("Expected min deposit 10500000, got %d", fc.MinDeposit)
	}
	if fc.Manager != common.HexToAddress("0x0000000000000000000000000000000000000002") {
		t.Errorf("Unexpected manager %s", fc.Manager.Hex())
	}
	if fc.FeeMode != domain.FeeModeShares {
		t.Errorf("Expected default fee mode shares, got %s", fc.FeeMode)
	}
	if cfg.Engine.InboxSize != 256 {
		t.Errorf("Expected default inbox size, got %d", cfg.Engine.InboxSize)
	}

	y, err := cfg.YieldVenue()
	if err != nil {
		t.Fatalf("YieldVenue failed: %v", err)
	}
	if y.RewardPrice != quant.PriceScale*45/100 {
		t.Errorf("Expected reward price 0.45 scaled, got %d", y.RewardPrice)
	}
	if y.InstantLiquidity != 25_000_000_000 || y.RedeemFeeByChain[110] != 25 {
		t.Errorf("Unexpected yield venue: %+v", y)
	}

	tr, err := cfg.TradingVenue()
	if err != nil {
		t.Fatalf("TradingVenue failed: %v", err)
	}
	if tr.MinPositionAmount != 10_000_000 || tr.KeeperFee != 2 {
		t.Errorf("Unexpected trading venue: %+v", tr)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		replace [2]string
	}{
		{"bad owner", [2]string{`owner: "0x0000000000000000000000000000000000000001"`, `owner: "alice"`}},
		{"min above max", [2]string{`min_deposit: "10.5"`, `min_deposit: "60000"`}},
		{"too many decimals", [2]string{`min_deposit: "10.5"`, `min_deposit: "10.0000001"`}},
		{"management ceiling", [2]string{`management_fee_bps: 200`, `management_fee_bps: 501`}},
		{"performance ceiling", [2]string{`performance_fee_bps: 2000`, `performance_fee_bps: 3001`}},
		{"skim above 100%", [2]string{`trading_skim_bps: 2000`, `trading_skim_bps: 10001`}},
		{"bad cron", [2]string{`"*/15 * * * *"`, `"every minute"`}},
		{"bad yield mode", [2]string{`mode: auto`, `mode: lazy`}},
		{"bad log level", [2]string{`level: info`, `level: loud`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := strings.Replace(testConfig, tt.replace[0], tt.replace[1], 1)
			if doc == testConfig {
				t.Fatalf("Replacement %q not found", tt.replace[0])
			}
			if _, err := ParseConfig([]byte(doc)); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestParseConfig_EnvOverrides(t *testing.T) {
	t.Setenv("VAULT_DB_PATH", "/tmp/vault-test.db")
	t.Setenv("VAULT_LOG_LEVEL", "debug")
	t.Setenv("VAULT_BRIDGE_URL", "ws://localhost:9000/bridge")
	t.Setenv("VAULT_API_ADDR", ":9090")
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	hexKey := hexutil.Encode(crypto.FromECDSA(key))
	t.Setenv("VAULT_SIGNER_KEY", hexKey)

	cfg, err := ParseConfig([]byte(testConfig))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if cfg.Storage.DBPath != "/tmp/vault-test.db" {
		t.Errorf("Expected db path override, got %q", cfg.Storage.DBPath)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected log level override, got %q", cfg.Logging.Level)
	}
	if cfg.Bridge.URL != "ws://localhost:9000/bridge" || cfg.API.Addr != ":9090" {
		t.Errorf("Unexpected overrides: bridge=%q api=%q", cfg.Bridge.URL, cfg.API.Addr)
	}
	if cfg.SignerKey != hexKey {
		t.Errorf("Expected signer key from env, got %q", cfg.SignerKey)
	}

	t.Setenv("VAULT_BRIDGE_URL", "http://localhost:9000")
	if _, err := ParseConfig([]byte(testConfig)); err == nil {
		t.Error("Expected non-websocket bridge URL to be rejected")
	}
}

func TestParseConfig_SignerKeyMustMatch(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("VAULT_SIGNER_KEY", hexutil.Encode(crypto.FromECDSA(key)))

	signer := crypto.PubkeyToAddress(key.PublicKey).Hex()
	doc := strings.Replace(testConfig, "  management_fee_bps", "  signer: \""+signer+"\"\n  management_fee_bps", 1)
	if _, err := ParseConfig([]byte(doc)); err != nil {
		t.Errorf("Expected matching signer to pass, got %v", err)
	}

	other := strings.Replace(testConfig, "  management_fee_bps", "  signer: \"0x00000000000000000000000000000000000000e1\"\n  management_fee_bps", 1)
	if _, err := ParseConfig([]byte(other)); err == nil {
		t.Error("Expected mismatched signer key to be rejected")
	}

	t.Setenv("VAULT_SIGNER_KEY", "deadbeef")
	if _, err := ParseConfig([]byte(testConfig)); err == nil {
		t.Error("Expected malformed signer key to be rejected")
	}
}

func TestLoadConfig_NotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Errorf("Expected ErrConfigNotFound, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(testConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); err != nil {
		t.Errorf("LoadConfig failed: %v", err)
	}
}
