package payout

import (
	"sort"

	"github.com/shopspring/decimal"

	pricing "qxlog/internal/pricing/domain"
)

// VoucherLine groups items priced by the same rule at the same unit rate.
type VoucherLine struct {
	Rule     pricing.Rule
	UnitRate decimal.Decimal
	Count    int
	Subtotal decimal.Decimal
}

// Voucher is the printable summary of a batch.
type Voucher struct {
	Batch     Batch
	Lines     []VoucherLine
	ItemCount int
	Total     decimal.Decimal
}

// SummarizeVoucher groups items by the rule and rate in their frozen snapshots.
// It never consults the live pricing setting.
func SummarizeVoucher(batch Batch, items []Item) Voucher {
	type key struct {
		rule pricing.Rule
		rate string
	}
	index := make(map[key]int)
	var lines []VoucherLine
	total := decimal.Zero
	for _, item := range items {
		snap := item.Snapshot.PricingSnapshot
		k := key{rule: snap.Rule, rate: snap.Rate.StringFixed(2)}
		pos, ok := index[k]
		if !ok {
			pos = len(lines)
			index[k] = pos
			lines = append(lines, VoucherLine{Rule: snap.Rule, UnitRate: snap.Rate.Round(2), Subtotal: decimal.Zero})
		}
		lines[pos].Count++
		lines[pos].Subtotal = lines[pos].Subtotal.Add(item.Amount)
		total = total.Add(item.Amount)
	}
	sort.SliceStable(lines, func(i, j int) bool {
		ri, rj := ruleRank(lines[i].Rule), ruleRank(lines[j].Rule)
		if ri != rj {
			return ri < rj
		}
		return lines[i].UnitRate.LessThan(lines[j].UnitRate)
	})
	return Voucher{Batch: batch, Lines: lines, ItemCount: len(items), Total: total}
}

func ruleRank(rule pricing.Rule) int {
	for i, r := range pricing.RuleOrder {
		if r == rule {
			return i
		}
	}
	return len(pricing.RuleOrder)
}
