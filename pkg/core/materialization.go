package core

// Materialization constants for model types.
const (
	MaterializationTable       = "table"
	MaterializationView        = "view"
	MaterializationIncremental = "incremental"
)

// ValidMaterializations lists the accepted materialization values.
var ValidMaterializations = []string{
	MaterializationTable,
	MaterializationView,
	MaterializationIncremental,
}
