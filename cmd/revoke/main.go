package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/certikapp/certik-backend/internal/revocation"
	"github.com/certikapp/certik-backend/pkg/config"
	"github.com/certikapp/certik-backend/pkg/ledger"
	"github.com/certikapp/certik-backend/pkg/logger"
)

// revoke marks a certificate invalid from the command line. Irreversible.
func main() {
	logg := logger.New(logger.Options{ServiceName: "revoke"})

	_ = godotenv.Load()

	tokenID := flag.Uint64("token", 0, "token id of the certificate to revoke")
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	flag.Parse()

	if *tokenID < 1 {
		fmt.Fprintln(os.Stderr, "missing or invalid -token")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "revoke",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := context.Background()

	if !*yes {
		fmt.Printf("revoke certificate %d? This cannot be undone. [y/N] ", *tokenID)
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("aborted")
			return
		}
	}

	backend, err := ledger.Dial(ctx, cfg.Ledger, logg)
	if err != nil {
		logg.Error(ctx, "failed to connect to ledger rpc", err)
		os.Exit(1)
	}
	defer backend.Close()

	ledgerClient, err := ledger.NewWithKey(
		backend,
		common.HexToAddress(cfg.Ledger.ContractAddress),
		cfg.Ledger.PrivateKey,
		cfg.Ledger.ChainID,
		logg,
	)
	if err != nil {
		logg.Error(ctx, "failed to build ledger client", err)
		os.Exit(1)
	}
	ledgerClient.SetConfirmInterval(cfg.Ledger.ConfirmInterval)

	svc := revocation.NewService(ledgerClient, logg, nil)
	result, err := svc.Revoke(ctx, *tokenID)
	if err != nil {
		logg.Error(ctx, "revocation failed", err)
		os.Exit(1)
	}

	fmt.Println("revoked token", result.TokenID, "tx:", result.TxHash)
}
