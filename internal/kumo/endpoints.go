package kumo

import (
	"context"
	"fmt"
	"net/http"
)

// Thin wrappers over execute for the v3 API surface. No invariants of
// their own; auth, retry and error policy live in execute.

// GetAccount returns the current user account information.
func (s *Session) GetAccount(ctx context.Context) (map[string]any, error) {
	return s.getJSON(ctx, "/v3/accounts/me")
}

// UpdatePreferences updates user account preferences (display units,
// dashboard flags and similar).
func (s *Session) UpdatePreferences(ctx context.Context, prefs map[string]any) (map[string]any, error) {
	return s.postJSON(ctx, http.MethodPut, "/v3/accounts/preferences", prefs)
}

// GetUnseenNotificationCount returns the number of unseen notifications.
func (s *Session) GetUnseenNotificationCount(ctx context.Context) (int, error) {
	resp, err := s.getJSON(ctx, "/v3/notifications/unseen-count")
	if err != nil {
		return 0, err
	}
	if count, ok := resp["count"].(float64); ok {
		return int(count), nil
	}
	return 0, nil
}

// GetSites returns all sites (locations) on the account.
func (s *Session) GetSites(ctx context.Context) ([]map[string]any, error) {
	return s.getJSONList(ctx, "/v3/sites/")
}

// GetSitesFull returns all sites with extended details.
func (s *Session) GetSitesFull(ctx context.Context) ([]map[string]any, error) {
	return s.getJSONList(ctx, "/v3/sites/full")
}

// GetSite returns details for one site.
func (s *Session) GetSite(ctx context.Context, siteID string) (map[string]any, error) {
	return s.getJSON(ctx, "/v3/sites/"+siteID)
}

// GetWeather returns current weather for a site location.
func (s *Session) GetWeather(ctx context.Context, siteID string) (map[string]any, error) {
	return s.getJSON(ctx, fmt.Sprintf("/v3/sites/%s/weather", siteID))
}

// GetKumoStation returns the Kumo Station (outdoor controller) for a
// site, if one is installed.
func (s *Session) GetKumoStation(ctx context.Context, siteID string) (map[string]any, error) {
	return s.getJSON(ctx, fmt.Sprintf("/v3/sites/%s/kumo-station", siteID))
}

// GetZones returns all zones for a site. Zones carry the adapter
// payload with the device serial and last reported state.
func (s *Session) GetZones(ctx context.Context, siteID string) ([]map[string]any, error) {
	return s.getJSONList(ctx, fmt.Sprintf("/v3/sites/%s/zones", siteID))
}

// GetZone returns details for one zone.
func (s *Session) GetZone(ctx context.Context, zoneID string) (map[string]any, error) {
	return s.getJSON(ctx, "/v3/zones/"+zoneID)
}

// GetGroups returns device groups for a site.
func (s *Session) GetGroups(ctx context.Context, siteID string) ([]map[string]any, error) {
	return s.getJSONList(ctx, fmt.Sprintf("/v3/sites/%s/groups", siteID))
}

// GetZoneSchedules returns schedules configured for a zone.
func (s *Session) GetZoneSchedules(ctx context.Context, zoneID string) ([]map[string]any, error) {
	return s.getJSONList(ctx, fmt.Sprintf("/v3/zones/%s/schedules", zoneID))
}

// GetZoneConnectionHistory returns one page of connection events.
func (s *Session) GetZoneConnectionHistory(ctx context.Context, zoneID string, page int) (map[string]any, error) {
	return s.getJSON(ctx, fmt.Sprintf("/v3/zones/%s/connection-history?page=%d", zoneID, page))
}

// GetZoneNotificationPreferences returns notification preferences for
// a zone.
func (s *Session) GetZoneNotificationPreferences(ctx context.Context, zoneID string) (map[string]any, error) {
	return s.getJSON(ctx, fmt.Sprintf("/v3/zones/%s/notification-preferences", zoneID))
}

// GetZoneComfortSettings returns comfort settings for a zone.
func (s *Session) GetZoneComfortSettings(ctx context.Context, zoneID string) (map[string]any, error) {
	return s.getJSON(ctx, fmt.Sprintf("/v3/zones/%s/comfort-settings?zoneId=%s", zoneID, zoneID))
}

// GetComfortPresets returns comfort presets for a season ("winter" or
// "summer").
func (s *Session) GetComfortPresets(ctx context.Context, season string) ([]map[string]any, error) {
	return s.getJSONList(ctx, "/v3/comfort-settings/presets?season="+season)
}

// GetDevice returns full device information.
func (s *Session) GetDevice(ctx context.Context, serial string) (map[string]any, error) {
	return s.getJSON(ctx, "/v3/devices/"+serial)
}

// GetDeviceProfile returns device profile and capabilities.
func (s *Session) GetDeviceProfile(ctx context.Context, serial string) (map[string]any, error) {
	return s.getJSON(ctx, fmt.Sprintf("/v3/devices/%s/profile", serial))
}

// GetDeviceStatus returns the operational status payload.
func (s *Session) GetDeviceStatus(ctx context.Context, serial string) (map[string]any, error) {
	return s.getJSON(ctx, fmt.Sprintf("/v3/devices/%s/status", serial))
}

// GetDeviceInitialSettings returns device initial/default settings.
func (s *Session) GetDeviceInitialSettings(ctx context.Context, serial string) (map[string]any, error) {
	return s.getJSON(ctx, fmt.Sprintf("/v3/devices/%s/initial-settings", serial))
}

// GetDeviceKumoProperties returns vendor-specific device properties.
func (s *Session) GetDeviceKumoProperties(ctx context.Context, serial string) (map[string]any, error) {
	return s.getJSON(ctx, fmt.Sprintf("/v3/devices/%s/kumo-properties", serial))
}

// SendDeviceCommand posts a command set to one device, e.g.
// {"spHeat": 20.0} or {"operationMode": "heat"}.
func (s *Session) SendDeviceCommand(ctx context.Context, serial string, commands map[string]any) (map[string]any, error) {
	payload := map[string]any{
		"deviceSerial": serial,
		"commands":     commands,
	}
	return s.postJSON(ctx, http.MethodPost, "/v3/devices/send-command", payload)
}
