package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/certikapp/certik-backend/internal/certificate"
	"github.com/certikapp/certik-backend/internal/issuance"
	"github.com/certikapp/certik-backend/pkg/config"
	"github.com/certikapp/certik-backend/pkg/ledger"
	"github.com/certikapp/certik-backend/pkg/logger"
	"github.com/certikapp/certik-backend/pkg/pinata"
)

// mint issues a single certificate from the command line using the
// configured signing key.
func main() {
	logg := logger.New(logger.Options{ServiceName: "mint"})

	_ = godotenv.Load()

	name := flag.String("name", "", "certificate name")
	description := flag.String("description", "", "certificate description")
	issuerName := flag.String("issuer", "", "issuing organization name")
	issuerAddress := flag.String("issuer-address", "", "issuing account address (optional)")
	recipientName := flag.String("recipient-name", "", "recipient display name")
	recipient := flag.String("recipient", "", "recipient ledger address")
	issueDate := flag.String("issue-date", "", "issue date (YYYY-MM-DD)")
	expiration := flag.String("expiration", "", "expiration date (YYYY-MM-DD, optional)")
	category := flag.String("category", "", "category (optional)")
	credentialID := flag.String("credential-id", "", "credential identifier (optional)")
	skills := flag.String("skills", "", "comma-separated skill tags (optional)")
	imagePath := flag.String("image", "", "path to the certificate image")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "mint",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := context.Background()

	if *imagePath == "" {
		fmt.Fprintln(os.Stderr, "missing -image")
		os.Exit(1)
	}
	imageFile, err := os.Open(*imagePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open image: %v\n", err)
		os.Exit(1)
	}
	defer imageFile.Close()

	store, err := pinata.NewClient(cfg.Pinata, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap content store", err)
		os.Exit(1)
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

	input := certificate.Input{
		Name:             *name,
		Description:      *description,
		IssuerName:       *issuerName,
		IssuerAddress:    *issuerAddress,
		RecipientName:    *recipientName,
		RecipientAddress: *recipient,
		IssueDate:        *issueDate,
		ExpirationDate:   *expiration,
		Category:         *category,
		CredentialID:     *credentialID,
	}
	if trimmed := strings.TrimSpace(*skills); trimmed != "" {
		for _, skill := range strings.Split(trimmed, ",") {
			input.Skills = append(input.Skills, strings.TrimSpace(skill))
		}
	}

	image := certificate.ImageSource{
		Name:        filepath.Base(*imagePath),
		ContentType: contentTypeFor(*imagePath),
		Content:     imageFile,
	}

	svc := issuance.NewService(store, ledgerClient, logg, nil)
	result, err := svc.Issue(ctx, input, image, func(p issuance.Progress) {
		msg := string(p.Stage)
		if p.Upload != nil {
			msg += " " + string(p.Upload.Phase)
		}
		fmt.Println(msg)
	})
	if err != nil {
		logg.Error(ctx, "issuance failed", err)
		os.Exit(1)
	}

	fmt.Println("tx:", result.TxHash)
	fmt.Println("metadata:", result.MetadataURI)
	if result.Ambiguous {
		fmt.Println("mint confirmed but the token id could not be recovered; check the transaction on an explorer")
		return
	}
	fmt.Println("token:", *result.TokenID)
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".svg":
		return "image/svg+xml"
	case ".webp":
		return "image/webp"
	}
	return "application/octet-stream"
}
