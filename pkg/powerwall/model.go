package powerwall

import "context"

// GatewayClient talks to a Tesla energy site through the Owner API.
// All calls are synchronous and honor the context deadline.
type GatewayClient interface {
	// FindBatterySite locates the first battery product on the account
	// and remembers its site id for subsequent calls.
	FindBatterySite(ctx context.Context) (*SiteInfo, error)
	GetSiteInfo(ctx context.Context) (*SiteInfo, error)
	GetLiveStatus(ctx context.Context) (*LiveStatus, error)
	SetOperationMode(ctx context.Context, mode string) (string, error)
	SetBackupReservePercent(ctx context.Context, percent int) (string, error)
}

type SiteComponents struct {
	Battery                                  bool   `json:"battery"`
	Solar                                    bool   `json:"solar"`
	Grid                                     bool   `json:"grid"`
	CustomerPreferredExportRule              string `json:"customer_preferred_export_rule"`
	DisallowChargeFromGridWithSolarInstalled bool   `json:"disallow_charge_from_grid_with_solar_installed"`
}

type SiteInfo struct {
	EnergySiteID         int64          `json:"energy_site_id"`
	ID                   string         `json:"id"`
	SiteName             string         `json:"site_name"`
	ResourceType         string         `json:"resource_type"`
	GatewayID            string         `json:"gateway_id"`
	DefaultRealMode      string         `json:"default_real_mode"`
	BackupReservePercent int            `json:"backup_reserve_percent"`
	BatteryCount         int            `json:"battery_count"`
	Version              string         `json:"version"`
	Components           SiteComponents `json:"components"`
}

type LiveStatus struct {
	PercentageCharged  float64 `json:"percentage_charged"`
	BatteryPower       float64 `json:"battery_power"`
	LoadPower          float64 `json:"load_power"`
	SolarPower         float64 `json:"solar_power"`
	GridPower          float64 `json:"grid_power"`
	GridStatus         string  `json:"grid_status"`
	TotalPackEnergy    float64 `json:"total_pack_energy"`
	EnergyLeft         float64 `json:"energy_left"`
	IslandStatus       string  `json:"island_status"`
	StormModeActive    bool    `json:"storm_mode_active"`
	Timestamp          string  `json:"timestamp"`
	PercentageChgdTime string  `json:"percentage_charged_time,omitempty"`
}

type commandResult struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

const resourceTypeBattery = "battery"
