package core

// TestSeverity controls whether a failing data test fails the run.
type TestSeverity string

// Test severities.
const (
	SeverityError TestSeverity = "error"
	SeverityWarn  TestSeverity = "warn"
)

// TestKind names a built-in data test.
type TestKind string

// Built-in data tests.
const (
	TestUnique         TestKind = "unique"
	TestNotNull        TestKind = "not_null"
	TestAcceptedValues TestKind = "accepted_values"
	TestRelationships  TestKind = "relationships"
	TestExpression     TestKind = "expression"
)

// TestConfig represents one entry of a model's tests list.
// Exactly one of the test fields is set.
type TestConfig struct {
	Unique         []string
	NotNull        []string
	AcceptedValues *AcceptedValuesConfig
	Relationships  *RelationshipsConfig
	Expression     string
	Severity       TestSeverity
}

// AcceptedValuesConfig represents accepted values test configuration.
type AcceptedValuesConfig struct {
	Column string
	Values []string
}

// RelationshipsConfig asserts that every value of Column exists in To.Field.
type RelationshipsConfig struct {
	Column string
	To     string
	Field  string
}

// DataTest is a single compiled assertion against one relation.
type DataTest struct {
	// Name is unique within a project, e.g. "unique_slv_orders_order_id"
	Name     string
	Kind     TestKind
	Target   string // model path or "source.<name>"
	Relation string // qualified relation the test reads
	Column   string
	Severity TestSeverity
	SQL      string
}

// TestStatus is the outcome of a data test.
type TestStatus string

// Test statuses.
const (
	TestStatusPass  TestStatus = "pass"
	TestStatusFail  TestStatus = "fail"
	TestStatusWarn  TestStatus = "warn"
	TestStatusError TestStatus = "error"
)
