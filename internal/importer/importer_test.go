package importer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"food-ordering/internal/domain"
	"github.com/shopspring/decimal"
)

type stubPromoRepo struct {
	items []domain.PromoCode
	err   error
}

func (s *stubPromoRepo) Upsert(_ context.Context, p domain.PromoCode) error {
	if s.err != nil {
		return s.err
	}
	s.items = append(s.items, p)
	return nil
}

func TestCSVImporter_Run(t *testing.T) {
	csvData := `code,kind,value,minOrderAmount,validFrom,validTo,maxRedemptions
 save10 ,percentage,10,0,,,1000
FIVEOFF,Fixed,5.00,20,2026-01-01,2026-12-31T23:59:59Z,50
,,,,,,
`
	repo := &stubPromoRepo{}
	imp := NewCSVImporter(strings.NewReader(csvData), repo)

	count, err := imp.Run(context.Background())
	if err != nil {
		t.Fatalf("import run: %v", err)
	}
	if count != 2 || len(repo.items) != 2 {
		t.Fatalf("expected 2 promos imported, got count=%d saved=%d", count, len(repo.items))
	}

	first := repo.items[0]
	if first.Code != "SAVE10" || first.Rule.Kind != domain.DiscountPercentage || !first.Rule.Value.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected first promo: %+v", first)
	}
	if !first.ValidFrom.IsZero() || !first.ValidTo.IsZero() || first.MaxRedemptions != 1000 {
		t.Fatalf("expected open window and 1000 slots, got %+v", first)
	}

	second := repo.items[1]
	if second.Rule.Kind != domain.DiscountFixed || !second.MinOrderAmount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("unexpected second promo: %+v", second)
	}
	if !second.ValidFrom.Equal(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected validFrom %v", second.ValidFrom)
	}
	if !second.ValidTo.Equal(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC)) {
		t.Fatalf("unexpected validTo %v", second.ValidTo)
	}
}

func TestCSVImporter_RejectsInvalidRows(t *testing.T) {
	cases := map[string]string{
		"unknown kind":      "X,bogo,1,0,,,10",
		"percent over 100":  "X,percentage,150,0,,,10",
		"no slots":          "X,fixed,1,0,,,0",
		"bad date":          "X,fixed,1,0,yesterday,,10",
		"inverted window":   "X,fixed,1,0,2026-02-01,2026-01-01,10",
		"non numeric value": "X,fixed,one,0,,,10",
	}
	for name, row := range cases {
		t.Run(name, func(t *testing.T) {
			csvData := "code,kind,value,minOrderAmount,validFrom,validTo,maxRedemptions\nOK,fixed,1,0,,,5\n" + row + "\n"
			repo := &stubPromoRepo{}
			count, err := NewCSVImporter(strings.NewReader(csvData), repo).Run(context.Background())
			if err == nil {
				t.Fatalf("expected error for %s", name)
			}
			if !strings.Contains(err.Error(), "line 3") {
				t.Fatalf("expected line number in error, got %v", err)
			}
			if count != 1 {
				t.Fatalf("expected the valid row to be imported first, got %d", count)
			}
		})
	}
}

func TestCSVImporter_MissingCodeColumn(t *testing.T) {
	_, err := NewCSVImporter(strings.NewReader("kind,value\nfixed,1\n"), &stubPromoRepo{}).Run(context.Background())
	if err == nil {
		t.Fatalf("expected error for missing code column")
	}
}

func TestCSVImporter_RepoError(t *testing.T) {
	boom := errors.New("db down")
	repo := &stubPromoRepo{err: boom}
	_, err := NewCSVImporter(strings.NewReader("code,kind,value,maxRedemptions\nA,fixed,1,1\n"), repo).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected repo error, got %v", err)
	}
}
