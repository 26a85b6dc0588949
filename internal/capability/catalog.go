package capability

// DefaultCapabilities is the built-in Wear Health Services catalog
var DefaultCapabilities = []Capability{
	{DataType: HeartRateBPM, Label: "Heart rate", Unit: "bpm", Overridable: true, Standard: true},
	{DataType: Location, Label: "Location", Unit: "", Overridable: false, Standard: true},
	{DataType: Steps, Label: "Steps", Unit: "steps/min", Overridable: true, Standard: true},
	{DataType: Calories, Label: "Calories", Unit: "kcal", Overridable: true, Standard: true},
	{DataType: Distance, Label: "Distance", Unit: "m", Overridable: true, Standard: true},
	{DataType: Floors, Label: "Floors", Unit: "floors", Overridable: true, Standard: false},
	{DataType: ElevationGain, Label: "Elevation gain", Unit: "m", Overridable: true, Standard: false},
	{DataType: ElevationLoss, Label: "Elevation loss", Unit: "m", Overridable: true, Standard: false},
	{DataType: AbsoluteElevation, Label: "Absolute elevation", Unit: "m", Overridable: true, Standard: false},
	{DataType: Pace, Label: "Pace", Unit: "min/km", Overridable: true, Standard: false},
	{DataType: Speed, Label: "Speed", Unit: "km/h", Overridable: true, Standard: true},
}
