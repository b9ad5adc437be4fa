package main

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/fieldsync/internal/tui/client"
	"github.com/matheus3301/fieldsync/internal/tui/views"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

var netCmd = &cobra.Command{
	Use:     "net",
	GroupID: "sync",
	Short:   "Show the daemon's connectivity verdict",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			ns, err := c.NetworkStatus(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return outputJSON(ns.Network)
			}
			n := ns.Network
			fmt.Printf("Online:    %v\n", n.Online)
			fmt.Printf("Platform:  %v\n", n.PlatformOnline)
			if n.ProbeURL != "" {
				fmt.Printf("Probe:     %s (ok=%v)\n", n.ProbeURL, n.LastProbeOK)
			}
			if !n.LastProbeAt.IsZero() {
				fmt.Printf("Probed at: %s\n", n.LastProbeAt.Local().Format(time.DateTime))
			}
			if n.LastError != "" {
				fmt.Printf("Error:     %s\n", n.LastError)
			}
			return nil
		})
	},
}

var qrPNGFlag string

var deviceCmd = &cobra.Command{
	Use:     "device",
	GroupID: "setup",
	Short:   "Show this device's identity and enrolment code",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd, func(ctx context.Context, c *client.Client) error {
			ns, err := c.NetworkStatus(ctx)
			if err != nil {
				return err
			}
			uri := views.EnrolmentURI(ns.Profile, ns.DeviceID, ns.CollectorID)
			if qrPNGFlag != "" {
				if err := qrcode.WriteFile(uri, qrcode.Medium, 256, qrPNGFlag); err != nil {
					return fmt.Errorf("write %s: %w", qrPNGFlag, err)
				}
			}
			if jsonFlag {
				return outputJSON(map[string]string{
					"profile":     ns.Profile,
					"deviceId":    ns.DeviceID,
					"collectorId": ns.CollectorID,
					"enrolUri":    uri,
				})
			}
			fmt.Printf("Profile:   %s\nDevice:    %s\nCollector: %s\n\n", ns.Profile, ns.DeviceID, ns.CollectorID)
			fmt.Print(views.RenderQR(uri))
			fmt.Println(uri)
			return nil
		})
	},
}

func init() {
	deviceCmd.Flags().StringVar(&qrPNGFlag, "png", "", "also write the enrolment code as a PNG file")
	rootCmd.AddCommand(netCmd, deviceCmd)
}
