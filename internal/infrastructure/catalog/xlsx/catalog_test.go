package xlsx

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
)

func writeWorkbook(t *testing.T, path string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("SetSheetRow() error = %v", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs() error = %v", err)
	}
}

func TestListPoliciesReadsWorkbook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.xlsx")
	writeWorkbook(t, path, [][]any{
		{"Farmer_Type", "Policy", "State", "Max_Land_Holding"},
		{"small", "PM-KISAN", "all", 2},
		{"", "Punjab Crop Diversification", "Punjab", ""},
		{"all", "Landless Labourer Support", "all", 0},
		{"all", "", "all", ""},
	})

	rules, err := New(path, "").ListPolicies(context.Background())
	if err != nil {
		t.Fatalf("ListPolicies() error = %v", err)
	}
	two, zero := 2.0, 0.0
	want := []domain.PolicyRule{
		{Policy: "PM-KISAN", State: "all", FarmerType: "small", MaxLandHolding: &two},
		{Policy: "Punjab Crop Diversification", State: "Punjab", FarmerType: "all"},
		{Policy: "Landless Labourer Support", State: "all", FarmerType: "all", MaxLandHolding: &zero},
	}
	if len(rules) != len(want) {
		t.Fatalf("rules = %+v", rules)
	}
	for i := range want {
		if !reflect.DeepEqual(rules[i], want[i]) {
			t.Fatalf("rule %d = %+v, want %+v", i, rules[i], want[i])
		}
	}
}

func TestListPoliciesReloadsChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.xlsx")
	writeWorkbook(t, path, [][]any{{"policy", "state", "farmer_type"}, {"A", "all", "all"}})

	catalog := New(path, "")
	if rules, _ := catalog.ListPolicies(context.Background()); len(rules) != 1 {
		t.Fatalf("first load = %+v", rules)
	}

	writeWorkbook(t, path, [][]any{{"policy", "state", "farmer_type"}, {"A", "all", "all"}, {"B", "all", "all"}})
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}
	if rules, _ := catalog.ListPolicies(context.Background()); len(rules) != 2 {
		t.Fatalf("reload = %+v", rules)
	}
}

func TestListPoliciesMissingFileIsUnavailable(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "none.xlsx"), "").ListPolicies(context.Background())
	if !domain.IsKind(err, domain.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestParseRowsValidation(t *testing.T) {
	if _, err := ParseRows([][]string{{"policy", "state"}}); err == nil {
		t.Fatal("expected missing column error")
	}
	if _, err := ParseRows([][]string{
		{"policy", "state", "farmer_type", "max_land_holding"},
		{"X", "all", "all", "two"},
	}); err == nil {
		t.Fatal("expected number parse error")
	}
	if _, err := ParseRows(nil); err == nil {
		t.Fatal("expected empty sheet error")
	}
}
