package interfaces

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	payout "qxlog/internal/payouts/domain"
	pricing "qxlog/internal/pricing/domain"
)

func TestRenderVoucherPDF_EncodesAccentedNames(t *testing.T) {
	item := payout.Item{
		ID:          "item-1",
		BatchID:     "batch-1",
		ProcedureID: "proc-1",
		Amount:      decimal.NewFromInt(350),
		Snapshot: payout.ItemSnapshot{
			Version:          payout.ItemSnapshotVersion,
			ProcedureID:      "proc-1",
			ProcedureDate:    "2024-01-01",
			StartTime:        "23:00",
			EndTime:          "00:00",
			PatientName:      "José Peña",
			CalculatedAmount: decimal.NewFromInt(350),
			PricingSnapshot:  pricing.Snapshot{Version: pricing.SnapshotVersion, Rule: pricing.RuleNight, Rate: decimal.NewFromInt(350)},
		},
	}
	batch := payout.Batch{
		ID:              "batch-1",
		InstrumentistID: "inst-1",
		PaidByID:        "op-1",
		PaidAt:          time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		TotalAmount:     decimal.NewFromInt(350),
		Status:          payout.StatusActive,
		ItemCount:       1,
	}
	voucher := payout.SummarizeVoucher(batch, []payout.Item{item})

	data, err := renderVoucherPDF(voucher, []payout.Item{item}, false)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.Contains(data, []byte("Jos\xe9 Pe\xf1a")) {
		t.Fatalf("patient name not encoded as cp1252")
	}
	if bytes.Contains(data, []byte("José Peña")) {
		t.Fatalf("patient name written as raw utf-8")
	}
}
