package model

import "encoding/json"

// CompanyConfig is the typed view of the company document used by the
// client-side mutators.
type CompanyConfig struct {
	CompanyName     string           `json:"companyName"`
	Machines        []Machine        `json:"machines"`
	Cycles          []Cycle          `json:"cycles"`
	ToolCategories  []ToolCategory   `json:"toolCategories"`
	ValidationRules []ValidationRule `json:"validationRules"`
}

type WorkEnvelope struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Z    float64 `json:"z"`
	Unit string  `json:"unit"`
}

type Precision struct {
	PositioningAccuracy float64 `json:"positioningAccuracy"`
	Repeatability       float64 `json:"repeatability"`
	Unit                string  `json:"unit"`
}

type NetworkInfo struct {
	IPAddress string `json:"ipAddress"`
	Hostname  string `json:"hostname"`
}

type MaintenanceEntry struct {
	Date        string `json:"date"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Technician  string `json:"technician"`
}

type Maintenance struct {
	LastService   string             `json:"lastService"`
	NextScheduled string             `json:"nextScheduled"`
	IntervalHours int                `json:"intervalHours"`
	History       []MaintenanceEntry `json:"history"`
}

type Documentation struct {
	Manual         string `json:"manual"`
	SetupSheets    string `json:"setupSheets"`
	MaintenanceLog string `json:"maintenanceLog"`
}

type Machine struct {
	ID                   string         `json:"id"`
	Name                 string         `json:"name"`
	Type                 string         `json:"type"`
	Manufacturer         string         `json:"manufacturer"`
	Model                string         `json:"model"`
	Control              string         `json:"control"`
	ControlVersion       string         `json:"controlVersion"`
	Axes                 int            `json:"axes"`
	MaxSpindleSpeed      int            `json:"maxSpindleSpeed"`
	ToolMagazineCapacity *int           `json:"toolMagazineCapacity,omitempty"`
	MaxLoadWeight        *float64       `json:"maxLoadWeight,omitempty"`
	InternalCoolant      bool           `json:"internalCoolant"`
	InternalAir          bool           `json:"internalAir"`
	CoolantType          string         `json:"coolantType,omitempty"`
	FineCoolantFilter    *bool          `json:"fineCoolantFilter,omitempty"`
	FixtureSystem        string         `json:"fixtureSystem,omitempty"`
	WorkEnvelope         WorkEnvelope   `json:"workEnvelope"`
	Precision            *Precision     `json:"precision,omitempty"`
	Network              *NetworkInfo   `json:"network,omitempty"`
	Maintenance          *Maintenance   `json:"maintenance,omitempty"`
	Documentation        *Documentation `json:"documentation,omitempty"`
	HasRobot             *bool          `json:"hasRobot,omitempty"`
}

type Cycle struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Description  string   `json:"description"`
	MachineTypes []string `json:"machineTypes"`
	Parameters   []string `json:"parameters"`
	Icon         string   `json:"icon"`
}

type ToolCategory struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Patterns    []string `json:"patterns"`
	Types       []string `json:"types"`
}

type RuleScope struct {
	Machines *bool `json:"machines,omitempty"`
	Cycles   *bool `json:"cycles,omitempty"`
	Tools    *bool `json:"tools,omitempty"`
}

type ValidationRule struct {
	ID           string                     `json:"id"`
	Name         string                     `json:"name"`
	Description  string                     `json:"description"`
	Active       bool                       `json:"active"`
	AppliesTo    *RuleScope                 `json:"appliesTo,omitempty"`
	MachineIDs   []string                   `json:"machineIds,omitempty"`
	CycleIDs     []string                   `json:"cycleIds,omitempty"`
	ToolPatterns []string                   `json:"toolPatterns,omitempty"`
	Conditions   map[string]json.RawMessage `json:"conditions,omitempty"`
}
