// Package recon derives the financial reconciliation view of an invoice
// from its LR set and external finance-costing rows. The report is a
// view, never stored state: identical inputs produce identical output.
package recon

import (
	"time"

	"github.com/google/uuid"
)

// CostingRow is one external finance-costing line keyed by LR number.
// The engine only reads these rows.
type CostingRow struct {
	LRNumber      string
	ChargeCode    string
	AllocatedCost float64
	Revenue       float64
	RevGLCode     string
	CostGLCode    string
}

// LRVariance is the drill-down line for a single LR. Its variance is
// revenue against lrPrice and is not rolled into the file totals.
type LRVariance struct {
	LRNumber   string  `json:"lrNumber"`
	FileNumber string  `json:"fileNumber"`
	LRPrice    float64 `json:"lrPrice"`
	Revenue    float64 `json:"revenue"`
	Variance   float64 `json:"variance"`
}

// FileReconciliation aggregates the LRs of one shipment file. AWLOffered
// and VendorSettled come from the first LR of the group; all LRs in a
// file share one offer so they are representative, not summed.
type FileReconciliation struct {
	FileNumber    string       `json:"fileNumber"`
	LRCount       int          `json:"lrCount"`
	AWLOffered    float64      `json:"awlOffered"`
	VendorSettled float64      `json:"vendorSettled"`
	LRPriceTotal  float64      `json:"lrPriceTotal"`
	ExtraCost     float64      `json:"extraCost"`
	Revenue       float64      `json:"revenue"`
	JobCost       float64      `json:"jobCost"`
	TaxShare      float64      `json:"taxShare"`
	Variance      float64      `json:"variance"`
	LRs           []LRVariance `json:"lrs"`
}

// InvoiceReconciliation is the full report. TotalVariance is computed
// from totalOffered rather than total revenue, so it is not the sum of
// the per-file variances; FileVarianceSum is exposed alongside it so the
// gap stays visible.
type InvoiceReconciliation struct {
	InvoiceID       uuid.UUID            `json:"invoiceId"`
	ReferenceNumber string               `json:"referenceNumber"`
	TaxAmount       float64              `json:"taxAmount"`
	TotalOffered    float64              `json:"totalOffered"`
	TotalLRPrice    float64              `json:"totalLrPrice"`
	TotalExtraCost  float64              `json:"totalExtraCost"`
	TotalRevenue    float64              `json:"totalRevenue"`
	TotalJobCost    float64              `json:"totalJobCost"`
	FileVarianceSum float64              `json:"fileVarianceSum"`
	TotalVariance   float64              `json:"totalVariance"`
	Files           []FileReconciliation `json:"files"`
	GeneratedAt     time.Time            `json:"generatedAt"`
}
