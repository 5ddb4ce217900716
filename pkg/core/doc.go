// Package core defines the shared language of the shopflow pipeline.
//
// This package contains:
//   - Domain entities (Model, Source, Report, Run, TestResult)
//   - Service interfaces (Store)
//   - Configuration types (TargetConfig, AdapterConfig)
//
// pkg/core imports only the standard library. All other packages depend
// on core, not the reverse.
package core
