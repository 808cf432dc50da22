// ABOUTME: Tests for patient storage operations
// ABOUTME: Verifies exact-name uniqueness, lookups, and alphabetical listing
package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPatientCreateAndGet(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	created, err := store.Patients.Create(ctx, "Nazra Mastoor")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.ID == 0 {
		t.Error("Create() returned zero id")
	}

	got, err := store.Patients.GetByName(ctx, "Nazra Mastoor")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if got == nil || got.ID != created.ID {
		t.Fatalf("GetByName() = %+v, want id %d", got, created.ID)
	}
	if time.Since(got.CreatedAt) > time.Minute {
		t.Errorf("CreatedAt = %v, want recent", got.CreatedAt)
	}
}

func TestPatientCreateDuplicate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.Patients.Create(ctx, "Alice"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	_, err := store.Patients.Create(ctx, "Alice")
	if !errors.Is(err, ErrPatientExists) {
		t.Errorf("duplicate Create() error = %v, want ErrPatientExists", err)
	}
}

func TestPatientNamesAreCaseSensitive(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"john doe", "John Doe", "John Doe "} {
		if _, err := store.Patients.Create(ctx, name); err != nil {
			t.Fatalf("Create(%q) error = %v", name, err)
		}
	}

	n, err := store.Patients.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 3 {
		t.Errorf("Count() = %d, want 3 distinct patients", n)
	}
}

func TestPatientCreateEmptyName(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.Patients.Create(context.Background(), ""); !errors.Is(err, ErrInvalidPatientName) {
		t.Errorf("Create(\"\") error = %v, want ErrInvalidPatientName", err)
	}
}

func TestPatientGetByNameNotFound(t *testing.T) {
	store := openTestStore(t)
	got, err := store.Patients.GetByName(context.Background(), "Nobody")
	if err != nil {
		t.Fatalf("GetByName() error = %v", err)
	}
	if got != nil {
		t.Errorf("GetByName() = %+v, want nil", got)
	}
}

func TestPatientListAlphabetical(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"Mom", "Dad", "Asgar Ali Ansari"} {
		if _, err := store.Patients.Create(ctx, name); err != nil {
			t.Fatalf("Create(%q) error = %v", name, err)
		}
	}

	patients, err := store.Patients.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"Asgar Ali Ansari", "Dad", "Mom"}
	if len(patients) != len(want) {
		t.Fatalf("List() returned %d patients, want %d", len(patients), len(want))
	}
	for i, p := range patients {
		if p.Name != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, p.Name, want[i])
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-11-01 10:23:00", time.Date(2025, 11, 1, 10, 23, 0, 0, time.UTC)},
		{"2025-11-01T10:23:00", time.Date(2025, 11, 1, 10, 23, 0, 0, time.UTC)},
		{"2025-11-01T10:23:00.123456", time.Date(2025, 11, 1, 10, 23, 0, 123456000, time.UTC)},
		{"2025-11-01T10:23:00Z", time.Date(2025, 11, 1, 10, 23, 0, 0, time.UTC)},
		{"garbage", time.Time{}},
	}
	for _, tt := range tests {
		if got := parseTimestamp(tt.in); !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
