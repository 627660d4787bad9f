package main

import (
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"

	"github.com/artlu99/wallets-and-faucet/cmd/flags"
	"github.com/artlu99/wallets-and-faucet/cryptoutils"
	"github.com/artlu99/wallets-and-faucet/entropy"
	"github.com/artlu99/wallets-and-faucet/httpserver"
	"github.com/artlu99/wallets-and-faucet/interfaces"
	"github.com/artlu99/wallets-and-faucet/paymentgate"
	"github.com/artlu99/wallets-and-faucet/storage"
	"github.com/artlu99/wallets-and-faucet/vaultservice"
)

var serverFlags = append([]cli.Flag{
	flags.StoreURIFlag,
	flags.TTLSecondsFlag,
	flags.EncryptionKeyFlag,
	flags.EncryptionPassphraseFlag,
	flags.SaltFlag,
	flags.BeaconURLFlag,
	flags.ChargePerRequestFlag,
	flags.PayToAddressFlag,
	flags.FacilitatorURLFlag,
	flags.PaymentWorkerURLFlag,
	flags.PaymentBypassFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "vaultserver",
		Usage: "Serve the ephemeral EOA vault API with x402 payment gating",
		Flags: serverFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			ttl := time.Duration(cCtx.Int64(flags.TTLSecondsFlag.Name)) * time.Second
			if ttl <= interfaces.MinTTL {
				logger.Error("TTL must exceed the 60 second floor", "ttl", ttl)
				return errors.New("ttl-seconds must exceed 60")
			}

			salt, err := interfaces.NewSalt(cCtx.String(flags.SaltFlag.Name))
			if err != nil {
				logger.Error("Invalid default salt", "err", err)
				return err
			}

			defaultKey, err := resolveDefaultKey(cCtx, salt)
			if err != nil {
				logger.Error("Failed to resolve default encryption key", "err", err)
				return err
			}

			storeURI := cCtx.String(flags.StoreURIFlag.Name)
			store, err := storage.NewSecretStoreFactory(logger).SecretStoreFor(storeURI)
			if err != nil {
				logger.Error("Failed to create secret store", "uri", storeURI, "err", err)
				return err
			}
			logger.Info("Secret store ready", "store", store.Name(), "location", store.LocationURI())

			entropySource := entropy.NewSource(
				cCtx.String(flags.BeaconURLFlag.Name),
				entropy.DefaultBeaconTimeout,
				logger,
			)

			handler, err := vaultservice.NewHandler(&vaultservice.Config{
				Store:            store,
				Entropy:          entropySource,
				DefaultKey:       defaultKey,
				DefaultSalt:      salt,
				TTL:              ttl,
				ChargePerRequest: cCtx.Float64(flags.ChargePerRequestFlag.Name),
				Log:              logger,
			})
			if err != nil {
				logger.Error("Failed to create vault handler", "err", err)
				return err
			}

			gate, err := paymentgate.NewGate(paymentgate.Config{
				ChargePerRequest: cCtx.Float64(flags.ChargePerRequestFlag.Name),
				TTL:              ttl,
				PayTo:            cCtx.String(flags.PayToAddressFlag.Name),
				FacilitatorURL:   cCtx.String(flags.FacilitatorURLFlag.Name),
				PaymentWorkerURL: cCtx.String(flags.PaymentWorkerURLFlag.Name),
				Bypass:           cCtx.Bool(flags.PaymentBypassFlag.Name),
				Log:              logger,
			})
			if err != nil {
				logger.Error("Failed to create payment gate", "err", err)
				return err
			}

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
			server, err := httpserver.New(cfg, func(r chi.Router) {
				handler.RegisterRoutes(r, gate.Middleware())
			})
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Vault server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// resolveDefaultKey picks the configured default encryption key: an explicit
// base85 key wins, otherwise one is derived from the passphrase.
func resolveDefaultKey(cCtx *cli.Context, salt interfaces.Salt) (interfaces.EncryptionKey, error) {
	if encoded := cCtx.String(flags.EncryptionKeyFlag.Name); encoded != "" {
		return interfaces.NewEncryptionKeyFromBase85(encoded)
	}
	if passphrase := cCtx.String(flags.EncryptionPassphraseFlag.Name); passphrase != "" {
		return cryptoutils.DeriveKeyFromPassphrase(passphrase, string(salt)), nil
	}
	return interfaces.EncryptionKey{}, errors.New("either encryption-key or encryption-passphrase is required")
}
