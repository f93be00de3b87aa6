package pricing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Tier is a group-buy pricing breakpoint: every unit is charged Price once
// the cumulative quantity reaches Min.
type Tier struct {
	Min   int64           `json:"min"`
	Price decimal.Decimal `json:"price"`
}

// Table is an ordered set of tiers, highest minimum first, terminated by a
// zero-minimum catch-all so resolution is total.
type Table struct {
	tiers []Tier
}

// NewTable validates the tier list and returns a Table. The list must be
// sorted by strictly decreasing minimum, end with a zero-minimum entry, and
// carry positive prices throughout.
func NewTable(tiers []Tier) (Table, error) {
	if len(tiers) == 0 {
		return Table{}, errors.New("pricing: tier table is empty")
	}
	if tiers[len(tiers)-1].Min != 0 {
		return Table{}, errors.New("pricing: tier table must end with a zero-minimum catch-all")
	}
	prev := int64(-1)
	for i, tier := range tiers {
		if tier.Min < 0 {
			return Table{}, fmt.Errorf("pricing: tier %d has negative minimum", i)
		}
		if tier.Price.Sign() <= 0 {
			return Table{}, fmt.Errorf("pricing: tier %d has non-positive price", i)
		}
		if i > 0 && tier.Min >= prev {
			return Table{}, fmt.Errorf("pricing: tier minimums must strictly decrease (index %d)", i)
		}
		prev = tier.Min
	}
	owned := make([]Tier, len(tiers))
	copy(owned, tiers)
	return Table{tiers: owned}, nil
}

// ParseTable builds a table from a "min:price,min:price" spec, e.g.
// "1500:4.5,1000:5.0,500:6.0,300:7.0,200:9.0,0:9.0".
func ParseTable(spec string) (Table, error) {
	parts := strings.Split(spec, ",")
	tiers := make([]Tier, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		fields := strings.SplitN(trimmed, ":", 2)
		if len(fields) != 2 {
			return Table{}, fmt.Errorf("pricing: malformed tier %q", trimmed)
		}
		min, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
		if err != nil {
			return Table{}, fmt.Errorf("pricing: tier minimum %q: %w", fields[0], err)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(fields[1]))
		if err != nil {
			return Table{}, fmt.Errorf("pricing: tier price %q: %w", fields[1], err)
		}
		tiers = append(tiers, Tier{Min: min, Price: price})
	}
	return NewTable(tiers)
}

// Default returns the deployment's standard tier table.
func Default() Table {
	table, err := ParseTable("1500:4.5,1000:5.0,500:6.0,300:7.0,200:9.0,0:9.0")
	if err != nil {
		panic(err)
	}
	return table
}

// Tiers returns a copy of the configured tiers, highest minimum first.
func (t Table) Tiers() []Tier {
	out := make([]Tier, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// Resolve returns the applicable tier for the cumulative quantity: the
// first-listed tier whose minimum does not exceed it. The zero catch-all
// guarantees a match for any non-negative quantity.
func (t Table) Resolve(cumulative int64) Tier {
	for _, tier := range t.tiers {
		if cumulative >= tier.Min {
			return tier
		}
	}
	return t.tiers[len(t.tiers)-1]
}

// UnitPrice returns the unit price applicable at the cumulative quantity.
func (t Table) UnitPrice(cumulative int64) decimal.Decimal {
	return t.Resolve(cumulative).Price
}

// OrderTotal prices a prospective order of qty units against the aggregate
// before the order. The unit price comes from the grand total INCLUDING the
// order, so a large order can pull its own price down by crossing a
// threshold; the result is rounded up to a whole currency unit.
func (t Table) OrderTotal(before, qty int64) int64 {
	if qty <= 0 {
		return 0
	}
	price := t.UnitPrice(before + qty)
	return price.Mul(decimal.NewFromInt(qty)).Ceil().IntPart()
}
