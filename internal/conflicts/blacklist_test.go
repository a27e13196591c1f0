package conflicts

import (
	"errors"
	"testing"
)

func TestEnsureSeeded(t *testing.T) {
	db := setupTestDB(t)

	if err := EnsureSeeded(db); err != nil {
		t.Fatal(err)
	}

	entries, err := ListBlacklist(db, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != len(defaultBlacklist) {
		t.Fatalf("expected %d seeded entries, got %d", len(defaultBlacklist), len(entries))
	}

	found := false
	for _, e := range entries {
		if e.ExtensionID == "cjpalhdlnbpafiamejdnhcphjbkeiagm" {
			found = true
			if e.Name != "uBlock Origin" || e.Severity != SeverityHigh {
				t.Errorf("unexpected uBlock Origin entry: %+v", e)
			}
		}
	}
	if !found {
		t.Error("uBlock Origin missing from seed")
	}
}

func TestEnsureSeededRunsOnce(t *testing.T) {
	db := setupTestDB(t)

	if err := EnsureSeeded(db); err != nil {
		t.Fatal(err)
	}
	if _, err := RemoveBlacklistEntry(db, "cjpalhdlnbpafiamejdnhcphjbkeiagm"); err != nil {
		t.Fatal(err)
	}
	// A pruned table must not be re-seeded.
	if err := EnsureSeeded(db); err != nil {
		t.Fatal(err)
	}

	entries, _ := ListBlacklist(db, true)
	if len(entries) != len(defaultBlacklist)-1 {
		t.Errorf("seed ran again: %d entries", len(entries))
	}
}

func TestListBlacklistSeverityOrdering(t *testing.T) {
	db := setupTestDB(t)

	inputs := []BlacklistInput{
		{ExtensionID: "low1", Name: "Low", Severity: SeverityLow},
		{ExtensionID: "crit1", Name: "Critical", Severity: SeverityCritical},
		{ExtensionID: "med1", Name: "Medium", Severity: SeverityMedium},
		{ExtensionID: "high1", Name: "High", Severity: SeverityHigh},
	}
	for _, in := range inputs {
		if err := UpsertBlacklistEntry(db, in); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := ListBlacklist(db, true)
	if err != nil {
		t.Fatal(err)
	}

	want := []string{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
	for i, e := range entries {
		if e.Severity != want[i] {
			t.Fatalf("position %d: want %s, got %s", i, want[i], e.Severity)
		}
	}
}

func TestUpsertBlacklistEntry(t *testing.T) {
	db := setupTestDB(t)

	if err := UpsertBlacklistEntry(db, BlacklistInput{
		ExtensionID: "abc", Name: "First Name",
	}); err != nil {
		t.Fatal(err)
	}

	// Defaults
	entries, _ := ListBlacklist(db, true)
	if entries[0].Category != "other" || entries[0].Severity != SeverityMedium || entries[0].ActionRequired != ActionBlock {
		t.Errorf("defaults not applied: %+v", entries[0])
	}

	// Upsert replaces in place.
	if err := UpsertBlacklistEntry(db, BlacklistInput{
		ExtensionID: "abc", Name: "Second Name", Severity: SeverityCritical,
	}); err != nil {
		t.Fatal(err)
	}
	entries, _ = ListBlacklist(db, true)
	if len(entries) != 1 {
		t.Fatalf("upsert duplicated the row: %d entries", len(entries))
	}
	if entries[0].Name != "Second Name" || entries[0].Severity != SeverityCritical {
		t.Errorf("upsert did not replace fields: %+v", entries[0])
	}
}

func TestUpsertBlacklistEntryValidation(t *testing.T) {
	db := setupTestDB(t)

	err := UpsertBlacklistEntry(db, BlacklistInput{ExtensionID: "abc"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("missing name should be a validation error, got %v", err)
	}
}

func TestToggleBlacklistEntry(t *testing.T) {
	db := setupTestDB(t)

	if err := UpsertBlacklistEntry(db, BlacklistInput{ExtensionID: "abc", Name: "X"}); err != nil {
		t.Fatal(err)
	}

	found, err := ToggleBlacklistEntry(db, "abc", false)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("entry should exist")
	}

	active, _ := ListBlacklist(db, true)
	if len(active) != 0 {
		t.Error("deactivated entry should be filtered from active listing")
	}
	all, _ := ListBlacklist(db, false)
	if len(all) != 1 {
		t.Error("deactivated entry should still exist")
	}

	found, _ = ToggleBlacklistEntry(db, "missing", true)
	if found {
		t.Error("unknown entry should report not found")
	}
}

func TestRemoveBlacklistEntry(t *testing.T) {
	db := setupTestDB(t)

	if err := UpsertBlacklistEntry(db, BlacklistInput{ExtensionID: "abc", Name: "X"}); err != nil {
		t.Fatal(err)
	}

	found, err := RemoveBlacklistEntry(db, "abc")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("remove should find the entry")
	}

	found, _ = RemoveBlacklistEntry(db, "abc")
	if found {
		t.Error("second remove should report not found")
	}
}
