package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"food-ordering/internal/domain"
	"github.com/shopspring/decimal"
)

type PromoWriter interface {
	Upsert(ctx context.Context, promo domain.PromoCode) error
}

// CSVImporter reads promo code rows and inserts/updates them in the registry.
//
// Expected headers: code, kind, value, minOrderAmount, validFrom, validTo,
// maxRedemptions. Dates are RFC 3339 or YYYY-MM-DD; empty bounds are open.
type CSVImporter struct {
	reader *csv.Reader
	repo   PromoWriter
}

func NewCSVImporter(r io.Reader, repo PromoWriter) *CSVImporter {
	csvr := csv.NewReader(r)
	csvr.FieldsPerRecord = -1 // rows may have trailing commas
	csvr.TrimLeadingSpace = true
	return &CSVImporter{reader: csvr, repo: repo}
}

// Run parses every row and upserts it. It stops at the first invalid row and
// reports its line number.
func (i *CSVImporter) Run(ctx context.Context) (int, error) {
	headers, err := i.reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read headers: %w", err)
	}
	index := headerIndex(headers)
	if _, ok := index["code"]; !ok {
		return 0, errors.New("missing code column")
	}

	imported := 0
	for line := 2; ; line++ {
		record, err := i.reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return imported, fmt.Errorf("read row: %w", err)
		}
		if pick(record, index, "code") == "" {
			continue
		}

		promo, err := parseRow(record, index)
		if err != nil {
			return imported, fmt.Errorf("line %d: %w", line, err)
		}
		if err := i.repo.Upsert(ctx, promo); err != nil {
			return imported, fmt.Errorf("upsert promo %q: %w", promo.Code, err)
		}
		imported++
	}
	return imported, nil
}

func parseRow(record []string, index map[string]int) (domain.PromoCode, error) {
	p := domain.PromoCode{
		Code: domain.NormalizePromoCode(pick(record, index, "code")),
		Rule: domain.DiscountRule{Kind: domain.DiscountKind(strings.ToLower(pick(record, index, "kind")))},
	}

	var err error
	if p.Rule.Value, err = parseDecimal(pick(record, index, "value")); err != nil {
		return p, fmt.Errorf("value: %w", err)
	}
	if p.MinOrderAmount, err = parseDecimal(pick(record, index, "minOrderAmount")); err != nil {
		return p, fmt.Errorf("minOrderAmount: %w", err)
	}
	if p.ValidFrom, err = parseTime(pick(record, index, "validFrom")); err != nil {
		return p, fmt.Errorf("validFrom: %w", err)
	}
	if p.ValidTo, err = parseTime(pick(record, index, "validTo")); err != nil {
		return p, fmt.Errorf("validTo: %w", err)
	}
	if raw := pick(record, index, "maxRedemptions"); raw != "" {
		if p.MaxRedemptions, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return p, fmt.Errorf("maxRedemptions: %w", err)
		}
	}
	if !p.Rule.Valid() {
		return p, fmt.Errorf("%w: rule %s %s", domain.ErrInvalidInput, p.Rule.Kind, p.Rule.Value)
	}
	if p.MaxRedemptions <= 0 {
		return p, fmt.Errorf("%w: maxRedemptions must be positive", domain.ErrInvalidInput)
	}
	if !p.ValidFrom.IsZero() && !p.ValidTo.IsZero() && p.ValidTo.Before(p.ValidFrom) {
		return p, fmt.Errorf("%w: validTo before validFrom", domain.ErrInvalidInput)
	}
	return p, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func pick(record []string, index map[string]int, key string) string {
	pos, ok := index[key]
	if !ok || pos >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[pos])
}
