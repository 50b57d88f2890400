package recon

import (
	"sort"
	"time"

	"github.com/freightbill/freightbill/internal/invoice"
	"github.com/freightbill/freightbill/internal/lr"
)

// BuildReport computes the reconciliation view for one invoice. Pure: it
// never mutates its inputs and orders files by file number so repeated
// runs over the same data are byte-identical apart from GeneratedAt.
func BuildReport(inv invoice.Invoice, lrs []lr.LRRequest, costing []CostingRow, now time.Time) InvoiceReconciliation {
	revenueByLR := make(map[string]float64)
	costByLR := make(map[string]float64)
	for _, row := range costing {
		revenueByLR[row.LRNumber] += row.Revenue
		costByLR[row.LRNumber] += row.AllocatedCost
	}

	groups := make(map[string][]lr.LRRequest)
	var fileNumbers []string
	for _, l := range lrs {
		if _, seen := groups[l.FileNumber]; !seen {
			fileNumbers = append(fileNumbers, l.FileNumber)
		}
		groups[l.FileNumber] = append(groups[l.FileNumber], l)
	}
	sort.Strings(fileNumbers)

	var totalLRPrice float64
	for _, l := range lrs {
		totalLRPrice += lr.Amount(l.LRPrice)
	}

	report := InvoiceReconciliation{
		InvoiceID:       inv.ID,
		ReferenceNumber: inv.ReferenceNumber,
		TaxAmount:       inv.TaxAmount,
		TotalLRPrice:    totalLRPrice,
		GeneratedAt:     now,
	}

	for _, fileNumber := range fileNumbers {
		group := groups[fileNumber]
		file := FileReconciliation{
			FileNumber:    fileNumber,
			LRCount:       len(group),
			AWLOffered:    lr.Amount(group[0].PriceOffered),
			VendorSettled: lr.Amount(group[0].PriceSettled),
		}
		for _, l := range group {
			price := lr.Amount(l.LRPrice)
			revenue := revenueByLR[l.LRNumber]
			file.LRPriceTotal += price
			file.ExtraCost += lr.Amount(l.ExtraCost)
			file.Revenue += revenue
			file.JobCost += costByLR[l.LRNumber]
			file.LRs = append(file.LRs, LRVariance{
				LRNumber:   l.LRNumber,
				FileNumber: fileNumber,
				LRPrice:    price,
				Revenue:    revenue,
				Variance:   revenue - price,
			})
		}
		if totalLRPrice != 0 {
			file.TaxShare = file.LRPriceTotal / totalLRPrice * inv.TaxAmount
		}
		file.Variance = file.Revenue - file.LRPriceTotal - file.TaxShare - file.ExtraCost

		report.TotalOffered += file.AWLOffered
		report.TotalExtraCost += file.ExtraCost
		report.TotalRevenue += file.Revenue
		report.TotalJobCost += file.JobCost
		report.FileVarianceSum += file.Variance
		report.Files = append(report.Files, file)
	}

	// The invoice-level figure substitutes offered for revenue, so it
	// diverges from FileVarianceSum whenever the two differ. Both are
	// reported; do not reconcile them here.
	report.TotalVariance = report.TotalOffered - report.TotalLRPrice - inv.TaxAmount - report.TotalExtraCost

	return report
}
