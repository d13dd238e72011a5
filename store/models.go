package store

// Organization is a row of the organization table
type Organization struct {
	ID      int64  `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Address string `json:"address" yaml:"address"`
}

// Facility is a row of the facility table. Each facility references the
// organization that owns it.
type Facility struct {
	ID             int64  `json:"id" yaml:"id"`
	OrganizationID int64  `json:"organizationId" yaml:"organizationId"`
	Name           string `json:"name" yaml:"name"`
	Location       string `json:"location" yaml:"location"`
	Capacity       int64  `json:"capacity" yaml:"capacity"`
}
