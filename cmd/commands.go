package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"kumoctl"
)

func newLoginCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Login and cache tokens",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, password, err := promptCredentials(a.cfg.Username, a.cfg.Password)
			if err != nil {
				return err
			}
			if err := a.session.Login(cmd.Context(), username, password); err != nil {
				return err
			}
			fmt.Printf("Logged in as: %s\n", username)
			fmt.Printf("Tokens cached to: %s\n", a.cfg.TokenFile)
			return nil
		},
	}
}

// promptCredentials fills in whichever of username/password is not
// already configured. The password prompt does not echo.
func promptCredentials(username, password string) (string, string, error) {
	reader := bufio.NewReader(os.Stdin)
	if username == "" {
		fmt.Print("Kumo Cloud Username: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", "", fmt.Errorf("read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}
	if password == "" {
		fmt.Print("Kumo Cloud Password: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", "", fmt.Errorf("read password: %w", err)
		}
		password = string(raw)
	}
	return username, password, nil
}

func newStatusCmd(a *app) *cobra.Command {
	var (
		deviceFlag string
		verbose    bool
		refresh    bool
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show device status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if deviceFlag != "" {
				serial := a.session.ResolveDevice(cmd.Context(), deviceFlag)
				var rec kumoctl.DeviceRecord
				var err error
				if refresh {
					rec, err = a.session.GetFreshDeviceStatus(cmd.Context(), serial)
				} else {
					rec, err = a.session.GetDeviceStatusBySerial(cmd.Context(), serial)
				}
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(rec)
				}
				printRecord(rec, verbose)
				return nil
			}

			records, err := a.session.GetAllDevices(cmd.Context(), refresh)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(records)
			}
			printHeader(refresh)
			for _, rec := range records {
				printRecord(rec, verbose)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&deviceFlag, "device", "d", "", "specific device serial or name")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show additional device info (RSSI, MHK2, setpoints)")
	cmd.Flags().BoolVarP(&refresh, "refresh", "r", false, "force fresh data from devices over the push channel")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := a.session.GetAllDevices(cmd.Context(), false)
			if err != nil {
				return err
			}
			for _, rec := range records {
				fmt.Println(rec)
			}
			return nil
		},
	}
}

func newSetTempCmd(a *app) *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "set-temp <device> <temp>",
		Short: "Set target temperature (Fahrenheit)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			temp, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("temperature %q is not a number", args[1])
			}
			if mode != "" && !slices.Contains([]string{kumoctl.ModeCool, kumoctl.ModeHeat, kumoctl.ModeAuto}, mode) {
				return fmt.Errorf("mode must be cool, heat or auto, got %q", mode)
			}
			serial := a.session.ResolveDevice(cmd.Context(), args[0])
			result, err := a.session.SetTemperature(cmd.Context(), serial, temp, mode)
			if err != nil {
				return err
			}
			fmt.Printf("Temperature set to %.1fF for %s\n", temp, args[0])
			return printJSON(result)
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "", "mode to use (cool|heat|auto)")
	return cmd
}

func newSetModeCmd(a *app) *cobra.Command {
	modes := []string{kumoctl.ModeOff, kumoctl.ModeCool, kumoctl.ModeHeat, kumoctl.ModeDry, "fan", kumoctl.ModeAuto}
	return &cobra.Command{
		Use:   "set-mode <device> <mode>",
		Short: "Set operating mode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(modes, args[1]) {
				return fmt.Errorf("mode must be one of %s, got %q", strings.Join(modes, "|"), args[1])
			}
			serial := a.session.ResolveDevice(cmd.Context(), args[0])
			result, err := a.session.SetMode(cmd.Context(), serial, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Mode set to %s for %s\n", args[1], args[0])
			return printJSON(result)
		},
	}
}

func newTurnCmd(a *app, on bool) *cobra.Command {
	use, short := "turn-off <device>", "Turn off device"
	if on {
		use, short = "turn-on <device>", "Turn on device"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serial := a.session.ResolveDevice(cmd.Context(), args[0])
			var err error
			if on {
				_, err = a.session.TurnOn(cmd.Context(), serial)
			} else {
				_, err = a.session.TurnOff(cmd.Context(), serial)
			}
			if err != nil {
				return err
			}
			state := "off"
			if on {
				state = "on"
			}
			fmt.Printf("Device %s turned %s\n", args[0], state)
			return nil
		},
	}
}

func newSetFanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-fan <device> <speed>",
		Short: "Set fan speed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(kumoctl.FanSpeeds, args[1]) {
				return fmt.Errorf("speed must be one of %s, got %q", strings.Join(kumoctl.FanSpeeds, "|"), args[1])
			}
			serial := a.session.ResolveDevice(cmd.Context(), args[0])
			result, err := a.session.SetFanSpeed(cmd.Context(), serial, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Fan speed set to %s for %s\n", args[1], args[0])
			return printJSON(result)
		},
	}
}

func newSetVaneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set-vane <device> <direction>",
		Short: "Set air direction (vane)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(kumoctl.AirDirections, args[1]) {
				return fmt.Errorf("direction must be one of %s, got %q", strings.Join(kumoctl.AirDirections, "|"), args[1])
			}
			serial := a.session.ResolveDevice(cmd.Context(), args[0])
			result, err := a.session.SetAirDirection(cmd.Context(), serial, args[1])
			if err != nil {
				return err
			}
			fmt.Printf("Air direction set to %s for %s\n", args[1], args[0])
			return printJSON(result)
		},
	}
}

var rawEndpoints = []string{
	"account", "sites", "zones", "groups", "device",
	"device-status", "device-profile", "device-props", "weather",
}

func newRawCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "raw <endpoint> [id]",
		Short: "Raw API calls (" + strings.Join(rawEndpoints, "|") + ")",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) > 1 {
				id = args[1]
			}
			result, err := a.runRaw(cmd, args[0], id)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

// runRaw dispatches one raw endpoint call, resolving the site ID from
// config where the endpoint needs one.
func (a *app) runRaw(cmd *cobra.Command, endpoint, id string) (any, error) {
	ctx := cmd.Context()
	siteID := id
	if siteID == "" {
		siteID = a.session.SiteID()
	}

	switch endpoint {
	case "account":
		return a.session.GetAccount(ctx)
	case "sites":
		return a.session.GetSites(ctx)
	case "zones":
		if siteID == "" {
			return nil, fmt.Errorf("site ID required for zones (set KUMO_SITE_ID or pass as argument)")
		}
		return a.session.GetZones(ctx, siteID)
	case "groups":
		if siteID == "" {
			return nil, fmt.Errorf("site ID required for groups (set KUMO_SITE_ID or pass as argument)")
		}
		return a.session.GetGroups(ctx, siteID)
	case "device":
		if id == "" {
			return nil, fmt.Errorf("device serial required")
		}
		return a.session.GetDevice(ctx, id)
	case "device-status":
		if id == "" {
			return nil, fmt.Errorf("device serial required")
		}
		return a.session.GetDeviceStatus(ctx, id)
	case "device-profile":
		if id == "" {
			return nil, fmt.Errorf("device serial required")
		}
		return a.session.GetDeviceProfile(ctx, id)
	case "device-props":
		if id == "" {
			return nil, fmt.Errorf("device serial required")
		}
		return a.session.GetDeviceKumoProperties(ctx, id)
	case "weather":
		if siteID == "" {
			return nil, fmt.Errorf("site ID required for weather (set KUMO_SITE_ID or pass as argument)")
		}
		return a.session.GetWeather(ctx, siteID)
	default:
		return nil, fmt.Errorf("unknown endpoint %q (valid: %s)", endpoint, strings.Join(rawEndpoints, ", "))
	}
}

// printJSON renders a value as indented JSON on stdout.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func printHeader(refresh bool) {
	fmt.Println(strings.Repeat("=", 70))
	if refresh {
		fmt.Println("KUMO CLOUD DEVICE STATUS (REFRESHED)")
	} else {
		fmt.Println("KUMO CLOUD DEVICE STATUS")
	}
	fmt.Println(strings.Repeat("=", 70))
}

// printRecord writes the one-line summary, plus an extras line in
// verbose mode.
func printRecord(rec kumoctl.DeviceRecord, verbose bool) {
	fmt.Printf("  %s\n", rec)
	if !verbose {
		return
	}
	var extras []string
	if rec.RSSI != nil {
		extras = append(extras, fmt.Sprintf("RSSI: %ddBm", *rec.RSSI))
	}
	if rec.HasMHK2 {
		extras = append(extras, "MHK2: Yes")
	}
	if rec.HasSensor {
		extras = append(extras, "Sensor: Yes")
	}
	if rec.ScheduleOwner != "" {
		extras = append(extras, "Schedule: "+rec.ScheduleOwner)
	}
	if rec.SpCool != nil && rec.SpHeat != nil {
		extras = append(extras, fmt.Sprintf("Setpoints: Cool=%.0fF Heat=%.0fF", *rec.SpCool, *rec.SpHeat))
	}
	if len(extras) > 0 {
		fmt.Printf("    [%s]\n", strings.Join(extras, ", "))
	}
}
