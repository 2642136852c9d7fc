//go:build postgres

package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"vehicle-registry/internal/models"
)

func openPostgresStoreForTest(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("VEHREG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VEHREG_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, err := NewPostgresStore(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres store: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = store.pool.Exec(cleanupCtx, "DELETE FROM vehicles WHERE reg LIKE 'ZZTEST%'")
		_ = store.Close(cleanupCtx)
	})
	return store
}

func TestPostgresVehicleLifecycle(t *testing.T) {
	store := openPostgresStoreForTest(t)
	ctx := context.Background()

	vehicle := models.Vehicle{
		Reg:    "ZZTEST0001",
		Brand:  "Maruti",
		Model:  "Swift",
		Year:   2019,
		Price:  550000,
		Kms:    42000,
		Images: []string{"/media/ZZTEST0001/000_abc.jpg"},
	}
	if _, err := store.CreateVehicle(ctx, vehicle); err != nil {
		t.Fatalf("CreateVehicle: %v", err)
	}
	if _, err := store.CreateVehicle(ctx, vehicle); !errors.Is(err, ErrDuplicateRegistration) {
		t.Fatalf("expected ErrDuplicateRegistration, got %v", err)
	}

	fetched, ok, err := store.GetVehicle(ctx, "ZZTEST0001")
	if err != nil || !ok {
		t.Fatalf("GetVehicle: ok=%v err=%v", ok, err)
	}
	if len(fetched.Images) != 1 || fetched.Images[0] != vehicle.Images[0] {
		t.Fatalf("images round trip failed: %v", fetched.Images)
	}

	price := 499000.0
	updated, err := store.UpdateVehicle(ctx, "ZZTEST0001", VehicleUpdate{Price: &price})
	if err != nil {
		t.Fatalf("UpdateVehicle: %v", err)
	}
	if updated.Price != price || updated.Brand != vehicle.Brand {
		t.Fatalf("partial update wrong: %+v", updated)
	}
	if _, err := store.UpdateVehicle(ctx, "ZZTEST0001", VehicleUpdate{}); !errors.Is(err, ErrEmptyUpdate) {
		t.Fatalf("expected ErrEmptyUpdate, got %v", err)
	}
	if _, err := store.UpdateVehicle(ctx, "ZZTEST9404", VehicleUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty update on unknown reg, got %v", err)
	}

	sold, err := store.MarkVehicleSold(ctx, "ZZTEST0001")
	if err != nil || !sold.IsSold {
		t.Fatalf("MarkVehicleSold: sold=%v err=%v", sold.IsSold, err)
	}

	removed, err := store.DeleteVehicle(ctx, "ZZTEST0001")
	if err != nil || removed.Reg != "ZZTEST0001" {
		t.Fatalf("DeleteVehicle: %+v err=%v", removed, err)
	}
	if _, err := store.DeleteVehicle(ctx, "ZZTEST0001"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresListFilter(t *testing.T) {
	store := openPostgresStoreForTest(t)
	ctx := context.Background()

	seed := []models.Vehicle{
		{Reg: "ZZTEST1001", Brand: "Honda", Model: "City", Price: 900000, IsSold: true},
		{Reg: "ZZTEST1002", Brand: "Hyundai", Model: "i20", Price: 650000},
	}
	for _, vehicle := range seed {
		if _, err := store.CreateVehicle(ctx, vehicle); err != nil {
			t.Fatalf("CreateVehicle(%s): %v", vehicle.Reg, err)
		}
	}

	sold := true
	got, err := store.ListVehicles(ctx, Filter{Query: "zztest10", Sold: &sold})
	if err != nil {
		t.Fatalf("ListVehicles: %v", err)
	}
	if len(got) != 1 || got[0].Reg != "ZZTEST1001" {
		t.Fatalf("unexpected filter result: %+v", got)
	}
}
