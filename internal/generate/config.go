// Package generate produces deterministic, deliberately noisy e-commerce
// data: customers with SCD history, products, orders with items and
// payments, web sessions and clickstream events.
//
// All randomness comes from one seeded source, so the same Config always
// yields the same rows. Noise (duplicates, malformed amounts, mixed date
// layouts, dirty strings, orphaned keys) is what the bronze and silver
// models exist to clean up.
package generate

import (
	"errors"
	"fmt"
	"time"
)

// Config controls the size and shape of a generated dataset.
type Config struct {
	Seed uint64

	Customers int
	Products  int
	Orders    int
	// Sessions is the number of browsing sessions. Purchase sessions are
	// generated on top of these, one per attributed order.
	Sessions int

	StartDate time.Time
	Days      int

	// NoiseRate is the per-row probability of each noise kind.
	NoiseRate float64
	// SCDRate is the share of customers that get historical versions.
	SCDRate float64
	// AnonymousRate is the share of sessions without a customer_id.
	AnonymousRate float64
	// UnstitchedRate is the share of events written without a session_id.
	UnstitchedRate float64
	// AttributedRate is the share of orders preceded by a purchase session.
	AttributedRate float64
}

// DefaultConfig returns the configuration used by `shopflow generate`.
func DefaultConfig() Config {
	return Config{
		Seed:           42,
		Customers:      500,
		Products:       80,
		Orders:         2000,
		Sessions:       3000,
		StartDate:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:           90,
		NoiseRate:      0.03,
		SCDRate:        0.15,
		AnonymousRate:  0.3,
		UnstitchedRate: 0.1,
		AttributedRate: 0.6,
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	counts := map[string]int{
		"customers": c.Customers,
		"products":  c.Products,
		"orders":    c.Orders,
		"sessions":  c.Sessions,
	}
	for _, name := range []string{"customers", "products", "orders", "sessions"} {
		if counts[name] < 0 {
			errs = append(errs, fmt.Errorf("%s must be >= 0, got %d", name, counts[name]))
		}
	}
	if c.Orders > 0 && (c.Customers == 0 || c.Products == 0) {
		errs = append(errs, errors.New("orders need at least one customer and one product"))
	}
	if c.Days < 1 {
		errs = append(errs, fmt.Errorf("days must be >= 1, got %d", c.Days))
	}
	if c.StartDate.IsZero() {
		errs = append(errs, errors.New("start date is required"))
	}

	rates := []struct {
		name string
		v    float64
	}{
		{"noise_rate", c.NoiseRate},
		{"scd_rate", c.SCDRate},
		{"anonymous_rate", c.AnonymousRate},
		{"unstitched_rate", c.UnstitchedRate},
		{"attributed_rate", c.AttributedRate},
	}
	for _, r := range rates {
		if !(r.v >= 0 && r.v <= 1) {
			errs = append(errs, fmt.Errorf("%s must be in [0, 1], got %g", r.name, r.v))
		}
	}
	return errors.Join(errs...)
}
