// The devicesim command simulates a zero-trust device onboarding against a
// running gateway: it provisions a record through the operator API, runs the
// challenge-response handshake the way device firmware would, and prints the
// policy document the gateway issued.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/oneedge/gateway/api"
	"github.com/oneedge/gateway/api/clients"
	"github.com/oneedge/gateway/cmd/flags"
)

var simFlags = append([]cli.Flag{
	flags.GatewayAddrFlag,
	&cli.StringFlag{
		Name:  "static-key",
		Usage: "device static key for challenge signing; defaults to '<device-id>-static-secret'",
	},
	&cli.StringFlag{
		Name:  "auth-id",
		Usage: "authentication identifier; defaults to the device id",
	},
	&cli.StringFlag{
		Name:  "hardware-fingerprint",
		Usage: "hardware fingerprint to bind; defaults to the device id",
	},
	&cli.BoolFlag{
		Name:  "skip-provision",
		Usage: "reuse an existing device record instead of provisioning",
	},
	&cli.StringFlag{
		Name:  "operator-user",
		Usage: "operator username for the provisioning call",
	},
	&cli.StringFlag{
		Name:    "operator-password",
		Usage:   "operator password for the provisioning call",
		EnvVars: []string{"ONEEDGE_OPERATOR_PASSWORD"},
	},
}, flags.CommonFlags...)

func main() {
	app := &cli.App{
		Name:      "devicesim",
		Usage:     "Simulate device provisioning and challenge-response onboarding",
		ArgsUsage: "<device-id>",
		Flags:     simFlags,
		Action:    run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	if cCtx.NArg() != 1 {
		return fmt.Errorf("expected exactly one device id argument, got %d", cCtx.NArg())
	}
	deviceID := cCtx.Args().First()
	logger := flags.SetupLogger(cCtx)

	staticKey := cCtx.String("static-key")
	if staticKey == "" {
		staticKey = deviceID + "-static-secret"
	}
	authID := cCtx.String("auth-id")
	if authID == "" {
		authID = deviceID
	}
	fingerprint := cCtx.String("hardware-fingerprint")
	if fingerprint == "" {
		fingerprint = deviceID
	}

	client := &clients.DeviceClient{
		ServerAddr:       cCtx.String(flags.GatewayAddrFlag.Name),
		OperatorUsername: cCtx.String("operator-user"),
		OperatorPassword: cCtx.String("operator-password"),
	}

	if !cCtx.Bool("skip-provision") {
		logger.Info("Provisioning device record", "deviceID", deviceID)
		resp, err := client.Provision(cCtx.Context, &api.ProvisionRequest{
			DeviceID:              deviceID,
			AuthMethod:            "pre_shared_key",
			AuthID:                authID,
			RotationIntervalHours: 168,
			DeviceStaticKey:       staticKey,
			HardwareFingerprint:   fingerprint,
			Metadata:              map[string]any{"simulated": true},
		})
		if err != nil {
			logger.Error("Provisioning failed", "err", err)
			return err
		}
		if resp.BootstrapSecret != "" {
			logger.Info("Bootstrap secret issued, store securely, it is displayed once",
				"bootstrapSecret", resp.BootstrapSecret)
		}
	}

	logger.Info("Running challenge-response handshake")
	result, err := client.Authenticate(cCtx.Context, deviceID, authID, staticKey, map[string]any{
		"simulator": "devicesim",
	})
	if err != nil {
		logger.Error("Handshake failed", "err", err)
		return err
	}

	logger.Info("Registration succeeded", "status", result.Status)
	if result.SessionSecret != "" {
		logger.Info("Session secret rotated during handshake, new secret displayed once",
			"sessionSecret", result.SessionSecret)
	}

	policy, err := json.MarshalIndent(result.Policy, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(policy))
	return nil
}
