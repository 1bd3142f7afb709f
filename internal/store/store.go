// Package store holds the observation history the models train and predict
// from. Observations are append-only per location; readers get copies and may
// not see writes that land after their read begins.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/agrisight/prediction-service/internal/models"
)

// ErrUnknownLocation is returned when a read names a location with no history.
var ErrUnknownLocation = errors.New("unknown location")

// Store is the observation history backend.
type Store interface {
	// PutObservation appends one observation to the location's history and
	// registers the location if it is new.
	PutObservation(ctx context.Context, obs models.WeatherObservation) error

	// RecentObservations returns up to n most recent observations for the
	// location, oldest first. Fewer than n are returned when the history is
	// shorter; an unknown location is ErrUnknownLocation.
	RecentObservations(ctx context.Context, location string, n int) ([]models.WeatherObservation, error)

	// ObservationsSince returns all observations recorded at or after the
	// cutoff, oldest first. An unknown location is ErrUnknownLocation.
	ObservationsSince(ctx context.Context, location string, since time.Time) ([]models.WeatherObservation, error)

	// Locations lists every location with at least one observation.
	Locations(ctx context.Context) ([]string, error)
}
