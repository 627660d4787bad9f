package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/urfave/cli/v2"

	"github.com/artlu99/wallets-and-faucet/cmd/flags"
	"github.com/artlu99/wallets-and-faucet/httpserver"
	"github.com/artlu99/wallets-and-faucet/paymentgate"
)

var workerFlags = append([]cli.Flag{
	flags.ChargePerRequestFlag,
	flags.PayToAddressFlag,
	flags.FacilitatorURLFlag,
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:  "paymentworker",
		Usage: "Verify and settle x402 payments for the vault's priced routes",
		Flags: workerFlags,
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			worker, err := paymentgate.NewWorker(paymentgate.WorkerConfig{
				PayTo:          cCtx.String(flags.PayToAddressFlag.Name),
				Price:          cCtx.Float64(flags.ChargePerRequestFlag.Name),
				FacilitatorURL: cCtx.String(flags.FacilitatorURLFlag.Name),
				Log:            logger,
			})
			if err != nil {
				logger.Error("Failed to create payment worker", "err", err)
				return err
			}

			cfg := flags.ConfigureServer(cCtx, logger, cCtx.String(flags.ListenAddrFlag.Name))
			server, err := httpserver.New(cfg, func(r chi.Router) {
				r.Mount("/", worker.Router())
			})
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Payment worker is running, press Ctrl+C to stop")
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
