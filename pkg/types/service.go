package types

import "context"

// Service is the remote game server. Every method blocks until the server
// answers or ctx is done, and converts non-200 responses into errors that
// match the sentinels in this package via errors.Is.
type Service interface {
	// Explore probes an area and returns the amount of treasure inside it.
	Explore(ctx context.Context, area Area) (Explore, error)

	// IssueLicense pays with coins (possibly none, for a free license).
	// Returns ErrTooManyLicenses when the active license cap is reached.
	IssueLicense(ctx context.Context, coins []Coin) (License, error)

	// ListLicenses returns the caller's active licenses.
	ListLicenses(ctx context.Context) ([]License, error)

	// Dig returns the treasure tokens found at the requested depth.
	// Returns ErrPermitDenied for an invalid or spent license and
	// ErrNotFound when nothing was found at that depth.
	Dig(ctx context.Context, req DigRequest) ([]string, error)

	// Cash redeems a treasure token for coins.
	Cash(ctx context.Context, token string) ([]Coin, error)
}
