package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"epoch_vault/internal/allowlist"
	"epoch_vault/internal/infra"
	"epoch_vault/internal/infra/storage"
	"epoch_vault/internal/service"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upgrade persisted snapshots to the current schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
		defer cancel()
		n, err := store.MigrateSnapshots(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Upgraded %d snapshot(s)\n", n)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the latest persisted fund state",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := openStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		snap, _, err := store.LatestSnapshot(cmd.Context())
		if err != nil {
			return err
		}
		view := service.NewFundView()
		view.Update(snap)
		st, _ := view.Status()

		out := struct {
			Status  service.Status   `json:"status"`
			Holders []service.Holder `json:"holders"`
		}{st, view.Holders()}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var signKey string

var signDepositCmd = &cobra.Command{
	Use:   "sign-deposit <depositor>",
	Short: "Produce the allow-list proof for a depositor",
	Long: `Sign keccak256(depositor) as an Ethereum signed message with the
allow-list signer key. The key is read from --key, else from the
VAULT_SIGNER_KEY environment of the loaded configuration.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid depositor address %q", args[0])
		}
		key := signKey
		if key == "" {
			cfg, err := infra.LoadConfig(configPath)
			if err != nil {
				return err
			}
			key = cfg.SignerKey
		}
		if key == "" {
			return fmt.Errorf("no signer key: pass --key or set VAULT_SIGNER_KEY")
		}
		priv, err := infra.ParseSignerKey(key)
		if err != nil {
			return err
		}

		proof, err := allowlist.Sign(priv, common.HexToAddress(args[0]))
		if err != nil {
			return err
		}
		fmt.Printf("signer: %s\nproof:  %s\n", crypto.PubkeyToAddress(priv.PublicKey).Hex(), hexutil.Encode(proof))
		return nil
	},
}

func init() {
	signDepositCmd.Flags().StringVar(&signKey, "key", "", "hex private key of the allow-list signer")
}

func openStorage() (*storage.Storage, error) {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	return storage.NewStorage(cfg.Storage.DBPath)
}
