package storage

import (
	"context"
	"strings"
	"sync"

	"vehicle-registry/internal/models"
	"vehicle-registry/internal/registration"
)

// MemoryStore keeps vehicle records in memory. It is safe for concurrent use
// and intended for development and tests; listing order is insertion order.
type MemoryStore struct {
	mu       sync.RWMutex
	vehicles map[string]models.Vehicle
	order    []string
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{vehicles: make(map[string]models.Vehicle)}
}

// Ping always reports success for the in-memory store.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) ListVehicles(_ context.Context, filter Filter) ([]models.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.EffectiveLimit()
	out := make([]models.Vehicle, 0)
	for _, reg := range s.order {
		vehicle, ok := s.vehicles[reg]
		if !ok || !matchesFilter(vehicle, filter) {
			continue
		}
		vehicle.Images = vehicle.CloneImages()
		out = append(out, vehicle)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) GetVehicle(_ context.Context, reg string) (models.Vehicle, bool, error) {
	s.mu.RLock()
	vehicle, ok := s.vehicles[reg]
	s.mu.RUnlock()
	if !ok {
		return models.Vehicle{}, false, nil
	}
	vehicle.Images = vehicle.CloneImages()
	return vehicle, true, nil
}

func (s *MemoryStore) CreateVehicle(_ context.Context, vehicle models.Vehicle) (models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.vehicles[vehicle.Reg]; exists {
		return models.Vehicle{}, ErrDuplicateRegistration
	}
	vehicle.Images = vehicle.CloneImages()
	s.vehicles[vehicle.Reg] = vehicle
	s.order = append(s.order, vehicle.Reg)
	vehicle.Images = vehicle.CloneImages()
	return vehicle, nil
}

func (s *MemoryStore) UpdateVehicle(_ context.Context, reg string, update VehicleUpdate) (models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vehicle, ok := s.vehicles[reg]
	if !ok {
		return models.Vehicle{}, ErrNotFound
	}
	// An unknown registration outranks an empty update.
	if update.IsZero() {
		return models.Vehicle{}, ErrEmptyUpdate
	}
	applyUpdate(&vehicle, update)
	s.vehicles[reg] = vehicle
	vehicle.Images = vehicle.CloneImages()
	return vehicle, nil
}

func (s *MemoryStore) MarkVehicleSold(_ context.Context, reg string) (models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vehicle, ok := s.vehicles[reg]
	if !ok {
		return models.Vehicle{}, ErrNotFound
	}
	vehicle.IsSold = true
	s.vehicles[reg] = vehicle
	vehicle.Images = vehicle.CloneImages()
	return vehicle, nil
}

func (s *MemoryStore) DeleteVehicle(_ context.Context, reg string) (models.Vehicle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	vehicle, ok := s.vehicles[reg]
	if !ok {
		return models.Vehicle{}, ErrNotFound
	}
	delete(s.vehicles, reg)
	for i, existing := range s.order {
		if existing == reg {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	vehicle.Images = vehicle.CloneImages()
	return vehicle, nil
}

func applyUpdate(vehicle *models.Vehicle, update VehicleUpdate) {
	if update.Brand != nil {
		vehicle.Brand = *update.Brand
	}
	if update.Model != nil {
		vehicle.Model = *update.Model
	}
	if update.Year != nil {
		vehicle.Year = *update.Year
	}
	if update.Price != nil {
		vehicle.Price = *update.Price
	}
	if update.Kms != nil {
		vehicle.Kms = *update.Kms
	}
	if update.Fuel != nil {
		vehicle.Fuel = *update.Fuel
	}
	if update.Transmission != nil {
		vehicle.Transmission = *update.Transmission
	}
	if update.Owner != nil {
		vehicle.Owner = *update.Owner
	}
	if update.Description != nil {
		vehicle.Description = *update.Description
	}
}

func matchesFilter(vehicle models.Vehicle, filter Filter) bool {
	if query := strings.TrimSpace(filter.Query); query != "" {
		lowered := strings.ToLower(query)
		normalized := strings.ToLower(registration.Normalize(query))
		if !strings.Contains(strings.ToLower(vehicle.Brand), lowered) &&
			!strings.Contains(strings.ToLower(vehicle.Model), lowered) &&
			!(normalized != "" && strings.Contains(strings.ToLower(vehicle.Reg), normalized)) {
			return false
		}
	}
	if brand := strings.TrimSpace(filter.Brand); brand != "" {
		if !strings.Contains(strings.ToLower(vehicle.Brand), strings.ToLower(brand)) {
			return false
		}
	}
	if filter.MaxPrice != nil && vehicle.Price > *filter.MaxPrice {
		return false
	}
	if filter.Sold != nil && vehicle.IsSold != *filter.Sold {
		return false
	}
	return true
}
