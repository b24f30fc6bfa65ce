package geocode

import (
	"context"
	"errors"
)

// ErrNoResult is returned when an address cannot be resolved to a postal code.
var ErrNoResult = errors.New("geocode: no postal code for address")

// Geocoder resolves an address to its postal code.
type Geocoder interface {
	PostalCode(ctx context.Context, address string) (string, error)
}

// Func adapts a function to Geocoder.
type Func func(ctx context.Context, address string) (string, error)

// PostalCode calls f.
func (f Func) PostalCode(ctx context.Context, address string) (string, error) { return f(ctx, address) }
