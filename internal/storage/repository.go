// Package storage provides the vehicle datastore behind the API handlers.
// Two drivers implement the same contract: an in-memory store for
// development and tests, and a Postgres store for deployments.
package storage

import (
	"context"
	"errors"

	"vehicle-registry/internal/models"
)

var (
	// ErrNotFound is returned when no record exists for the registration.
	ErrNotFound = errors.New("vehicle not found")
	// ErrDuplicateRegistration is returned when an insert collides with an
	// existing registration. The store's uniqueness constraint is the
	// authority; drivers never pre-check with a read.
	ErrDuplicateRegistration = errors.New("registration already exists")
	// ErrEmptyUpdate is returned when an update supplies no fields.
	ErrEmptyUpdate = errors.New("no fields to update")
)

const (
	// DefaultListLimit applies when the caller supplies no limit.
	DefaultListLimit = 100
	// MaxListLimit is the hard ceiling on a single listing response.
	MaxListLimit = 500
)

// Filter narrows ListVehicles results. All present terms are ANDed; the
// free-text Query term is an OR across brand, model, and registration. The
// zero value matches everything up to DefaultListLimit.
type Filter struct {
	Query    string
	Brand    string
	MaxPrice *float64
	Sold     *bool
	Limit    int
}

// EffectiveLimit resolves the caller-supplied limit against the default and
// the hard ceiling.
func (f Filter) EffectiveLimit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		return MaxListLimit
	}
	return f.Limit
}

// VehicleUpdate carries the optional subset of mutable fields for a partial
// update. Nil pointers leave the stored value untouched. Registration and
// images are deliberately absent: neither is updatable after creation.
type VehicleUpdate struct {
	Brand        *string
	Model        *string
	Year         *int
	Price        *float64
	Kms          *int64
	Fuel         *string
	Transmission *string
	Owner        *string
	Description  *string
}

// IsZero reports whether the update supplies no fields at all.
func (u VehicleUpdate) IsZero() bool {
	return u.Brand == nil && u.Model == nil && u.Year == nil && u.Price == nil &&
		u.Kms == nil && u.Fuel == nil && u.Transmission == nil && u.Owner == nil &&
		u.Description == nil
}

// Repository exposes the datastore operations required by the API handlers.
// Registrations passed in must already be in normalized form; drivers do not
// normalize on behalf of callers.
type Repository interface {
	Ping(ctx context.Context) error

	ListVehicles(ctx context.Context, filter Filter) ([]models.Vehicle, error)
	GetVehicle(ctx context.Context, reg string) (models.Vehicle, bool, error)
	CreateVehicle(ctx context.Context, vehicle models.Vehicle) (models.Vehicle, error)
	UpdateVehicle(ctx context.Context, reg string, update VehicleUpdate) (models.Vehicle, error)
	MarkVehicleSold(ctx context.Context, reg string) (models.Vehicle, error)
	DeleteVehicle(ctx context.Context, reg string) (models.Vehicle, error)
}

var _ Repository = (*MemoryStore)(nil)
