package xlsx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
)

var requiredColumns = []string{"policy", "state", "farmer_type"}

// Catalog serves policy rules from a workbook, re-reading it when the file
// modification time changes.
type Catalog struct {
	path  string
	sheet string

	mu      sync.Mutex
	modTime time.Time
	rules   []domain.PolicyRule
}

// New reads the first sheet unless sheet is set.
func New(path, sheet string) *Catalog {
	return &Catalog{path: path, sheet: sheet}
}

func (c *Catalog) ListPolicies(ctx context.Context) ([]domain.PolicyRule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "stat policy catalog", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rules != nil && info.ModTime().Equal(c.modTime) {
		return c.rules, nil
	}

	rules, err := c.load()
	if err != nil {
		return nil, domain.WrapError(domain.ErrBackendUnavailable, "load policy catalog", err)
	}
	c.rules = rules
	c.modTime = info.ModTime()
	return rules, nil
}

func (c *Catalog) load() ([]domain.PolicyRule, error) {
	f, err := excelize.OpenFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := c.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.New("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return ParseRows(rows)
}

// ParseRows maps a header row plus data rows onto rules. Column order is free;
// max_land_holding is optional.
func ParseRows(rows [][]string) ([]domain.PolicyRule, error) {
	if len(rows) == 0 {
		return nil, errors.New("sheet is empty")
	}
	header := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := header[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	cell := func(row []string, col string) string {
		i, ok := header[col]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	rules := make([]domain.PolicyRule, 0, len(rows)-1)
	for n, row := range rows[1:] {
		policy := cell(row, "policy")
		if policy == "" {
			continue
		}
		rule := domain.PolicyRule{
			Policy:     policy,
			State:      defaultAll(cell(row, "state")),
			FarmerType: defaultAll(cell(row, "farmer_type")),
		}
		if raw := cell(row, "max_land_holding"); raw != "" {
			limit, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: max_land_holding %q: %w", n+2, raw, err)
			}
			rule.MaxLandHolding = &limit
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func defaultAll(v string) string {
	if v == "" {
		return domain.EligibilityAll
	}
	return v
}
