package device

// Payload is the typed view of one dict-shaped status payload as it
// arrives from any source: a zone's adapter snapshot, a synchronous
// device fetch or a push update. Every field is optional; nil means
// the source did not report it. Raw retains the original keys for
// diagnostics and for the snapshot cache.
type Payload struct {
	DeviceSerial *string
	RoomTemp     *float64 // Celsius, as received
	SpCool       *float64 // Celsius
	SpHeat       *float64 // Celsius

	OperationMode *string
	Mode          *string // some payloads use "mode" instead of "operationMode"
	FanSpeed      *string
	AirDirection  *string

	Power    *int
	Humidity *int
	RSSI     *int

	Connected  *bool
	HasSensor  *bool
	HasMHK2    *bool
	IsHeadless *bool

	// displayConfig flags
	Filter    *bool
	Defrost   *bool
	Standby   *bool
	HotAdjust *bool

	ScheduleOwner      *string
	LastStatusChangeAt *string

	Raw map[string]any
}

// FromMap builds a typed Payload from decoded JSON. Unknown keys are
// preserved in Raw; known keys with unexpected types are treated as
// absent.
func FromMap(m map[string]any) Payload {
	if m == nil {
		return Payload{}
	}
	p := Payload{
		DeviceSerial:       getString(m, "deviceSerial"),
		RoomTemp:           getFloat(m, "roomTemp"),
		SpCool:             getFloat(m, "spCool"),
		SpHeat:             getFloat(m, "spHeat"),
		OperationMode:      getString(m, "operationMode"),
		Mode:               getString(m, "mode"),
		FanSpeed:           getString(m, "fanSpeed"),
		AirDirection:       getString(m, "airDirection"),
		Power:              getInt(m, "power"),
		Humidity:           getInt(m, "humidity"),
		RSSI:               getInt(m, "rssi"),
		Connected:          getBool(m, "connected"),
		HasSensor:          getBool(m, "hasSensor"),
		HasMHK2:            getBool(m, "hasMhk2"),
		IsHeadless:         getBool(m, "isHeadless"),
		ScheduleOwner:      getString(m, "scheduleOwner"),
		LastStatusChangeAt: getString(m, "lastStatusChangeAt"),
		Raw:                m,
	}

	if dc, ok := m["displayConfig"].(map[string]any); ok {
		p.Filter = getBool(dc, "filter")
		p.Defrost = getBool(dc, "defrost")
		p.Standby = getBool(dc, "standby")
		p.HotAdjust = getBool(dc, "hotAdjust")
	}
	return p
}

// getFloat reads a numeric key. JSON numbers decode as float64; ints
// cover payloads that went through typed marshaling.
func getFloat(m map[string]any, key string) *float64 {
	switch v := m[key].(type) {
	case float64:
		return &v
	case int:
		f := float64(v)
		return &f
	default:
		return nil
	}
}

func getInt(m map[string]any, key string) *int {
	switch v := m[key].(type) {
	case float64:
		i := int(v)
		return &i
	case int:
		return &v
	default:
		return nil
	}
}

func getString(m map[string]any, key string) *string {
	if v, ok := m[key].(string); ok && v != "" {
		return &v
	}
	return nil
}

func getBool(m map[string]any, key string) *bool {
	if v, ok := m[key].(bool); ok {
		return &v
	}
	return nil
}
