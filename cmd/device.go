package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"clearpoint-monitor/internal/database"
	"clearpoint-monitor/internal/types"
)

var (
	deviceID       string
	deviceName     string
	deviceCustomer string
	deviceGateway  string
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Manage the device registry",
}

var addCustomerCmd = &cobra.Command{
	Use:   "add-customer",
	Short: "Register a customer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(db *database.DB) error {
			id := idOrNew(deviceID)
			if err := db.CreateCustomer(cmd.Context(), id, deviceName); err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		})
	},
}

var addGatewayCmd = &cobra.Command{
	Use:   "add-mini-pc",
	Short: "Register a mini-PC for a customer",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(db *database.DB) error {
			d := types.Device{ID: idOrNew(deviceID), Name: deviceName, Kind: types.DeviceKindGateway, CustomerID: deviceCustomer}
			if err := db.CreateGateway(cmd.Context(), d); err != nil {
				return err
			}
			fmt.Println(d.ID)
			return nil
		})
	},
}

var addCameraCmd = &cobra.Command{
	Use:   "add-camera",
	Short: "Register a camera, optionally attached to a mini-PC",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(db *database.DB) error {
			d := types.Device{
				ID:         idOrNew(deviceID),
				Name:       deviceName,
				Kind:       types.DeviceKindCamera,
				CustomerID: deviceCustomer,
				GatewayID:  deviceGateway,
			}
			if err := db.CreateCamera(cmd.Context(), d); err != nil {
				return err
			}
			fmt.Println(d.ID)
			return nil
		})
	},
}

var deviceKind string

var disableDeviceCmd = &cobra.Command{
	Use:   "disable",
	Short: "Stop monitoring a camera or mini-PC",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, false)
	},
}

var enableDeviceCmd = &cobra.Command{
	Use:   "enable",
	Short: "Resume monitoring a camera or mini-PC",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setActive(cmd, true)
	},
}

var streamActive bool

var streamDeviceCmd = &cobra.Command{
	Use:   "stream",
	Short: "Mark whether a camera's stream is expected to be running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(cmd, func(db *database.DB) error {
			return db.SetCameraStreamActive(cmd.Context(), deviceID, streamActive)
		})
	},
}

func setActive(cmd *cobra.Command, active bool) error {
	kind := types.DeviceKind(deviceKind)
	if kind != types.DeviceKindCamera && kind != types.DeviceKindGateway {
		return fmt.Errorf("--kind must be camera or gateway")
	}
	return withRegistry(cmd, func(db *database.DB) error {
		return db.SetDeviceActive(cmd.Context(), kind, deviceID, active)
	})
}

// withRegistry opens the store for the duration of fn
func withRegistry(cmd *cobra.Command, fn func(db *database.DB) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	db, err := openStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(db)
}

func idOrNew(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func init() {
	for _, c := range []*cobra.Command{addCustomerCmd, addGatewayCmd, addCameraCmd} {
		c.Flags().StringVar(&deviceID, "id", "", "id (generated when empty)")
		c.Flags().StringVar(&deviceName, "name", "", "display name (required)")
		c.MarkFlagRequired("name")
		deviceCmd.AddCommand(c)
	}
	for _, c := range []*cobra.Command{addGatewayCmd, addCameraCmd} {
		c.Flags().StringVar(&deviceCustomer, "customer", "", "owning customer id (required)")
		c.MarkFlagRequired("customer")
	}
	addCameraCmd.Flags().StringVar(&deviceGateway, "mini-pc", "", "mini-PC the camera reports through")

	for _, c := range []*cobra.Command{disableDeviceCmd, enableDeviceCmd} {
		c.Flags().StringVar(&deviceID, "id", "", "device id (required)")
		c.Flags().StringVar(&deviceKind, "kind", "camera", "camera or gateway")
		c.MarkFlagRequired("id")
		deviceCmd.AddCommand(c)
	}

	streamDeviceCmd.Flags().StringVar(&deviceID, "id", "", "camera id (required)")
	streamDeviceCmd.Flags().BoolVar(&streamActive, "active", true, "stream is expected to be running")
	streamDeviceCmd.MarkFlagRequired("id")
	deviceCmd.AddCommand(streamDeviceCmd)

	rootCmd.AddCommand(deviceCmd)
}
