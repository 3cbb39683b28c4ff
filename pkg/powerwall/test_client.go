package powerwall

import "context"

func CreateTestGatewayClient() GatewayClient {
	return &TestGatewayClient{
		Site: SiteInfo{
			EnergySiteID:         12345,
			SiteName:             "Home Energy",
			ResourceType:         resourceTypeBattery,
			DefaultRealMode:      "self_consumption",
			BackupReservePercent: 35,
			BatteryCount:         2,
			Version:              "23.44.0",
			Components: SiteComponents{
				Battery:                     true,
				Solar:                       true,
				Grid:                        true,
				CustomerPreferredExportRule: "battery_ok",
			},
		},
		Status: LiveStatus{
			PercentageCharged: 72.45,
			BatteryPower:      -1250,
			LoadPower:         840,
			SolarPower:        2090,
			GridStatus:        "Active",
			TotalPackEnergy:   27020,
			EnergyLeft:        19576,
		},
	}
}

// TestGatewayClient serves canned data and records the commands it
// receives.
type TestGatewayClient struct {
	Site   SiteInfo
	Status LiveStatus

	ModesSet    []string
	ReservesSet []int
}

func (c *TestGatewayClient) FindBatterySite(ctx context.Context) (*SiteInfo, error) {
	site := c.Site
	return &site, nil
}

func (c *TestGatewayClient) GetSiteInfo(ctx context.Context) (*SiteInfo, error) {
	site := c.Site
	return &site, nil
}

func (c *TestGatewayClient) GetLiveStatus(ctx context.Context) (*LiveStatus, error) {
	status := c.Status
	return &status, nil
}

func (c *TestGatewayClient) SetOperationMode(ctx context.Context, mode string) (string, error) {
	c.ModesSet = append(c.ModesSet, mode)
	c.Site.DefaultRealMode = mode
	return "Updated", nil
}

func (c *TestGatewayClient) SetBackupReservePercent(ctx context.Context, percent int) (string, error) {
	c.ReservesSet = append(c.ReservesSet, percent)
	c.Site.BackupReservePercent = percent
	return "Updated", nil
}
