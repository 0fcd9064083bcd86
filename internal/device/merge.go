package device

import (
	"kumoctl"
)

// Merge combines payloads in increasing precedence: a later source's
// present fields replace an earlier one's, absent fields fall through.
// Raw maps merge by key overwrite so diagnostics keep the full union.
func Merge(sources ...Payload) Payload {
	var out Payload
	for _, src := range sources {
		overlay(&out, src)
	}
	return out
}

// overlay applies src's present fields on top of dst.
func overlay(dst *Payload, src Payload) {
	if src.DeviceSerial != nil {
		dst.DeviceSerial = src.DeviceSerial
	}
	if src.RoomTemp != nil {
		dst.RoomTemp = src.RoomTemp
	}
	if src.SpCool != nil {
		dst.SpCool = src.SpCool
	}
	if src.SpHeat != nil {
		dst.SpHeat = src.SpHeat
	}
	if src.OperationMode != nil {
		dst.OperationMode = src.OperationMode
	}
	if src.Mode != nil {
		dst.Mode = src.Mode
	}
	if src.FanSpeed != nil {
		dst.FanSpeed = src.FanSpeed
	}
	if src.AirDirection != nil {
		dst.AirDirection = src.AirDirection
	}
	if src.Power != nil {
		dst.Power = src.Power
	}
	if src.Humidity != nil {
		dst.Humidity = src.Humidity
	}
	if src.RSSI != nil {
		dst.RSSI = src.RSSI
	}
	if src.Connected != nil {
		dst.Connected = src.Connected
	}
	if src.HasSensor != nil {
		dst.HasSensor = src.HasSensor
	}
	if src.HasMHK2 != nil {
		dst.HasMHK2 = src.HasMHK2
	}
	if src.IsHeadless != nil {
		dst.IsHeadless = src.IsHeadless
	}
	if src.Filter != nil {
		dst.Filter = src.Filter
	}
	if src.Defrost != nil {
		dst.Defrost = src.Defrost
	}
	if src.Standby != nil {
		dst.Standby = src.Standby
	}
	if src.HotAdjust != nil {
		dst.HotAdjust = src.HotAdjust
	}
	if src.ScheduleOwner != nil {
		dst.ScheduleOwner = src.ScheduleOwner
	}
	if src.LastStatusChangeAt != nil {
		dst.LastStatusChangeAt = src.LastStatusChangeAt
	}
	if src.Raw != nil {
		if dst.Raw == nil {
			dst.Raw = make(map[string]any, len(src.Raw))
		}
		for k, v := range src.Raw {
			dst.Raw[k] = v
		}
	}
}

// Normalize builds the canonical record from a merged payload. The
// setpoint in use follows the operating mode: cool uses spCool, heat
// uses spHeat, anything else prefers spCool and falls back to spHeat.
// Temperatures convert from Celsius to Fahrenheit here, exactly once.
func Normalize(serial, name string, p Payload) kumoctl.DeviceRecord {
	mode := coalesce(p.OperationMode, p.Mode)

	var setTemp *float64
	switch mode {
	case kumoctl.ModeCool:
		setTemp = p.SpCool
	case kumoctl.ModeHeat:
		setTemp = p.SpHeat
	default:
		setTemp = p.SpCool
		if setTemp == nil {
			setTemp = p.SpHeat
		}
	}

	return kumoctl.DeviceRecord{
		Serial:           serial,
		Name:             name,
		RoomTemp:         CelsiusToFahrenheit(p.RoomTemp),
		SetTemp:          CelsiusToFahrenheit(setTemp),
		SpCool:           CelsiusToFahrenheit(p.SpCool),
		SpHeat:           CelsiusToFahrenheit(p.SpHeat),
		Mode:             mode,
		FanSpeed:         strOrEmpty(p.FanSpeed),
		AirDirection:     strOrEmpty(p.AirDirection),
		IsOn:             p.Power != nil && *p.Power == 1,
		Humidity:         p.Humidity,
		Connected:        p.Connected == nil || *p.Connected, // unreported means reachable
		RSSI:             p.RSSI,
		HasSensor:        boolOrFalse(p.HasSensor),
		HasMHK2:          boolOrFalse(p.HasMHK2),
		IsHeadless:       boolOrFalse(p.IsHeadless),
		FilterDirty:      boolOrFalse(p.Filter),
		Defrost:          boolOrFalse(p.Defrost),
		Standby:          boolOrFalse(p.Standby),
		HotAdjust:        boolOrFalse(p.HotAdjust),
		ScheduleOwner:    strOrEmpty(p.ScheduleOwner),
		LastStatusChange: strOrEmpty(p.LastStatusChangeAt),
		Raw:              p.Raw,
	}
}

// coalesce returns the first non-nil, non-empty string.
func coalesce(values ...*string) string {
	for _, v := range values {
		if v != nil && *v != "" {
			return *v
		}
	}
	return ""
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func boolOrFalse(b *bool) bool {
	return b != nil && *b
}
