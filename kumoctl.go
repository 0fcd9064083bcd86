package kumoctl

import (
	"fmt"
	"math"
	"strings"
)

// Operating modes accepted by the cloud API.
const (
	ModeOff  = "off"
	ModeCool = "cool"
	ModeHeat = "heat"
	ModeDry  = "dry"
	ModeVent = "vent"
	ModeAuto = "auto"
)

// Fan speeds accepted by the cloud API.
var FanSpeeds = []string{"superQuiet", "quiet", "low", "powerful", "superPowerful", "auto"}

// Air directions (vane positions) accepted by the cloud API.
var AirDirections = []string{"auto", "horizontal", "midhorizontal", "midpoint", "midvertical", "vertical", "swing"}

// DeviceRecord is the canonical, normalized view of one indoor unit.
// All temperature fields are in Fahrenheit, converted from the API's
// Celsius exactly once at construction time. Records are immutable
// once built; a previous record may only serve as a merge base.
type DeviceRecord struct {
	Serial           string         `json:"serial"`
	Name             string         `json:"name"`
	RoomTemp         *float64       `json:"room_temp,omitempty"`
	SetTemp          *float64       `json:"set_temp,omitempty"`
	SpCool           *float64       `json:"sp_cool,omitempty"`
	SpHeat           *float64       `json:"sp_heat,omitempty"`
	Mode             string         `json:"mode,omitempty"`
	FanSpeed         string         `json:"fan_speed,omitempty"`
	AirDirection     string         `json:"air_direction,omitempty"`
	IsOn             bool           `json:"is_on"`
	Humidity         *int           `json:"humidity,omitempty"`
	Connected        bool           `json:"connected"`
	RSSI             *int           `json:"rssi,omitempty"`
	HasSensor        bool           `json:"has_sensor"`
	HasMHK2          bool           `json:"has_mhk2"`
	IsHeadless       bool           `json:"is_headless"`
	FilterDirty      bool           `json:"filter_dirty"`
	Defrost          bool           `json:"defrost"`
	Standby          bool           `json:"standby"`
	HotAdjust        bool           `json:"hot_adjust"`
	ScheduleOwner    string         `json:"schedule_owner,omitempty"`
	LastStatusChange string         `json:"last_status_change,omitempty"`
	Raw              map[string]any `json:"raw_data,omitempty"`
}

// TempDiff returns room temperature minus set temperature, rounded to
// one decimal, or nil when either side is unknown.
func (r DeviceRecord) TempDiff() *float64 {
	if r.RoomTemp == nil || r.SetTemp == nil {
		return nil
	}
	d := math.Round((*r.RoomTemp-*r.SetTemp)*10) / 10
	return &d
}

// String renders a one-line status summary for console output.
func (r DeviceRecord) String() string {
	var b strings.Builder

	status := "OFF"
	if r.IsOn {
		status = "ON"
	}
	fmt.Fprintf(&b, "%-12s [%s]", r.Name, status)
	if !r.Connected {
		b.WriteString(" [OFFLINE]")
	}

	if r.RoomTemp != nil {
		fmt.Fprintf(&b, " Room: %.1fF", *r.RoomTemp)
		if r.SetTemp != nil {
			fmt.Fprintf(&b, " | Set: %.1fF (%s)", *r.SetTemp, r.describeDiff())
		}
	}
	if r.Mode != "" {
		fmt.Fprintf(&b, " | Mode: %s", r.Mode)
	}
	if r.FanSpeed != "" {
		fmt.Fprintf(&b, " | Fan: %s", r.FanSpeed)
	}
	if r.AirDirection != "" {
		fmt.Fprintf(&b, " | Vane: %s", r.AirDirection)
	}
	if r.Humidity != nil {
		fmt.Fprintf(&b, " | Humidity: %d%%", *r.Humidity)
	}
	return b.String()
}

// describeDiff phrases the room/setpoint delta for humans.
func (r DeviceRecord) describeDiff() string {
	diff := r.TempDiff()
	if diff == nil {
		return "target unknown"
	}
	switch {
	case *diff < 0:
		return fmt.Sprintf("heat another: %.1fF", -*diff)
	case *diff > 0:
		return fmt.Sprintf("too hot by: %.1fF", *diff)
	default:
		return "at target"
	}
}
