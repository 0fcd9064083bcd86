package kumo

import (
	"context"
	"errors"
	"strings"

	"kumoctl"
	"kumoctl/internal/device"
)

// ErrDeviceNotFound reports a name or serial that matched no zone.
var ErrDeviceNotFound = errors.New("device not found")

// GetDeviceStatusBySerial fetches one device synchronously and
// normalizes it, using the cached snapshot (if any) as merge base.
func (s *Session) GetDeviceStatusBySerial(ctx context.Context, serial string) (kumoctl.DeviceRecord, error) {
	name, base := s.loadSnapshot(ctx, serial)

	data, err := s.GetDevice(ctx, serial)
	if err != nil {
		return kumoctl.DeviceRecord{}, err
	}

	overlays := make([]device.Payload, 0, 2)
	if base != nil {
		overlays = append(overlays, device.FromMap(base))
	}
	overlays = append(overlays, device.FromMap(data))
	return s.finishRecord(ctx, serial, name, device.Merge(overlays...)), nil
}

// GetFreshDeviceStatus resolves the freshest available state for one
// device: push solicitation first, synchronous fetch second, cached
// snapshot last. Push-channel trouble never surfaces; only a failed
// synchronous fetch with no cache to fall back on is an error.
func (s *Session) GetFreshDeviceStatus(ctx context.Context, serial string) (kumoctl.DeviceRecord, error) {
	name, base := s.loadSnapshot(ctx, serial)

	overlays := make([]device.Payload, 0, 2)
	if base != nil {
		overlays = append(overlays, device.FromMap(base))
	}

	fresh := s.forceRefresh(ctx, serial)
	switch {
	case fresh != nil:
		overlays = append(overlays, device.FromMap(fresh))
	default:
		data, err := s.GetDevice(ctx, serial)
		if err != nil {
			if base == nil {
				return kumoctl.DeviceRecord{}, err
			}
			if s.log != nil {
				s.log.Warnw("live sources unavailable, serving cached snapshot", "serial", serial, "err", err)
			}
		} else {
			overlays = append(overlays, device.FromMap(data))
		}
	}

	return s.finishRecord(ctx, serial, name, device.Merge(overlays...)), nil
}

// GetAllDevices returns normalized records for every device on every
// site (or the configured site). With refresh, each device is asked to
// report through the push channel first; its zone adapter payload is
// the fallback and the merge base either way.
func (s *Session) GetAllDevices(ctx context.Context, refresh bool) ([]kumoctl.DeviceRecord, error) {
	sites, err := s.targetSites(ctx)
	if err != nil {
		return nil, err
	}

	var records []kumoctl.DeviceRecord
	for _, site := range sites {
		siteID, _ := site["id"].(string)
		if siteID == "" {
			continue
		}
		zones, err := s.GetZones(ctx, siteID)
		if err != nil {
			return nil, err
		}

		for _, zone := range zones {
			adapter, _ := zone["adapter"].(map[string]any)
			serial, _ := adapter["deviceSerial"].(string)
			if serial == "" {
				continue
			}
			name, _ := zone["name"].(string)
			if name == "" {
				name = "Unknown"
			}

			overlays := make([]device.Payload, 0, 3)
			if _, base := s.loadSnapshot(ctx, serial); base != nil {
				overlays = append(overlays, device.FromMap(base))
			}
			overlays = append(overlays, device.FromMap(adapter))
			if refresh {
				if fresh := s.forceRefresh(ctx, serial); fresh != nil {
					overlays = append(overlays, device.FromMap(fresh))
				}
			}

			records = append(records, s.finishRecord(ctx, serial, name, device.Merge(overlays...)))
		}
	}
	return records, nil
}

// GetDeviceByName resolves a friendly name to a serial and returns its
// status, fresh or synchronous.
func (s *Session) GetDeviceByName(ctx context.Context, name string, refresh bool) (kumoctl.DeviceRecord, error) {
	serial, err := s.SerialByName(ctx, name)
	if err != nil {
		return kumoctl.DeviceRecord{}, err
	}
	if refresh {
		return s.GetFreshDeviceStatus(ctx, serial)
	}
	return s.GetDeviceStatusBySerial(ctx, serial)
}

// SerialByName resolves a device name case-insensitively: configured
// aliases first, then zone names across the target sites.
func (s *Session) SerialByName(ctx context.Context, name string) (string, error) {
	lower := strings.ToLower(name)
	if serial, ok := s.serials[lower]; ok {
		return serial, nil
	}

	sites, err := s.targetSites(ctx)
	if err != nil {
		return "", err
	}
	for _, site := range sites {
		siteID, _ := site["id"].(string)
		if siteID == "" {
			continue
		}
		zones, err := s.GetZones(ctx, siteID)
		if err != nil {
			return "", err
		}
		for _, zone := range zones {
			zoneName, _ := zone["name"].(string)
			if strings.ToLower(zoneName) != lower {
				continue
			}
			adapter, _ := zone["adapter"].(map[string]any)
			if serial, _ := adapter["deviceSerial"].(string); serial != "" {
				return serial, nil
			}
		}
	}
	return "", ErrDeviceNotFound
}

// ResolveDevice accepts either a configured alias, a zone name or a
// raw serial and returns the serial.
func (s *Session) ResolveDevice(ctx context.Context, nameOrSerial string) string {
	if serial, err := s.SerialByName(ctx, nameOrSerial); err == nil {
		return serial
	}
	return nameOrSerial
}

// SetTemperature sets the target in Fahrenheit, converting to Celsius
// for the API. mode may be cool, heat, auto or empty; empty sets both
// setpoints without changing mode.
func (s *Session) SetTemperature(ctx context.Context, serial string, tempF float64, mode string) (map[string]any, error) {
	tempC := device.FahrenheitToCelsius(&tempF)

	commands := map[string]any{}
	switch mode {
	case kumoctl.ModeCool:
		commands["spCool"] = *tempC
		commands["operationMode"] = kumoctl.ModeCool
	case kumoctl.ModeHeat:
		commands["spHeat"] = *tempC
		commands["operationMode"] = kumoctl.ModeHeat
	case kumoctl.ModeAuto:
		commands["spCool"] = *tempC
		commands["spHeat"] = *tempC
		commands["operationMode"] = kumoctl.ModeAuto
	default:
		commands["spCool"] = *tempC
		commands["spHeat"] = *tempC
	}
	return s.SendDeviceCommand(ctx, serial, commands)
}

// SetMode sets the operating mode. The user-facing "fan" maps to the
// API's "vent".
func (s *Session) SetMode(ctx context.Context, serial, mode string) (map[string]any, error) {
	return s.SendDeviceCommand(ctx, serial, map[string]any{"operationMode": APIMode(mode)})
}

// TurnOn powers a device on.
func (s *Session) TurnOn(ctx context.Context, serial string) (map[string]any, error) {
	return s.SendDeviceCommand(ctx, serial, map[string]any{"power": 1})
}

// TurnOff powers a device off.
func (s *Session) TurnOff(ctx context.Context, serial string) (map[string]any, error) {
	return s.SendDeviceCommand(ctx, serial, map[string]any{"power": 0})
}

// SetFanSpeed sets the fan speed.
func (s *Session) SetFanSpeed(ctx context.Context, serial, speed string) (map[string]any, error) {
	return s.SendDeviceCommand(ctx, serial, map[string]any{"fanSpeed": speed})
}

// SetAirDirection sets the vane position.
func (s *Session) SetAirDirection(ctx context.Context, serial, direction string) (map[string]any, error) {
	return s.SendDeviceCommand(ctx, serial, map[string]any{"airDirection": direction})
}

// APIMode translates the user-facing mode vocabulary to the API's.
func APIMode(mode string) string {
	if mode == "fan" {
		return kumoctl.ModeVent
	}
	return mode
}

// SiteID returns the configured default site, or empty.
func (s *Session) SiteID() string { return s.siteID }

// targetSites returns the configured site as a single-entry list, or
// every site on the account.
func (s *Session) targetSites(ctx context.Context) ([]map[string]any, error) {
	if s.siteID != "" {
		return []map[string]any{{"id": s.siteID, "name": "Configured Site"}}, nil
	}
	return s.GetSites(ctx)
}

// forceRefresh asks the resolver for fresh push data. A nil resolver
// means the capability is absent in this deployment.
func (s *Session) forceRefresh(ctx context.Context, serial string) map[string]any {
	if s.resolver == nil {
		return nil
	}
	return s.resolver.ForceDeviceRefresh(ctx, serial, s.pushTimeout)
}

// loadSnapshot reads the last known payload for a serial, degrading to
// nothing on any cache trouble.
func (s *Session) loadSnapshot(ctx context.Context, serial string) (string, map[string]any) {
	if s.snapshots == nil {
		return "", nil
	}
	name, payload, err := s.snapshots.Load(ctx, serial)
	if err != nil {
		if s.log != nil {
			s.log.Debugw("snapshot load failed", "serial", serial, "err", err)
		}
		return "", nil
	}
	return name, payload
}

// finishRecord normalizes a merged payload and stores it as the new
// last-known snapshot. A failed save is logged and ignored.
func (s *Session) finishRecord(ctx context.Context, serial, name string, merged device.Payload) kumoctl.DeviceRecord {
	if name == "" {
		name = serial
	}
	rec := device.Normalize(serial, name, merged)
	if s.snapshots != nil && merged.Raw != nil {
		if err := s.snapshots.Save(ctx, serial, name, merged.Raw); err != nil && s.log != nil {
			s.log.Debugw("snapshot save failed", "serial", serial, "err", err)
		}
	}
	return rec
}
