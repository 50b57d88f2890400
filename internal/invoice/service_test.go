package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freightbill/freightbill/internal/lr"
	"github.com/freightbill/freightbill/internal/notify"
	"github.com/freightbill/freightbill/internal/shared"
	"github.com/freightbill/freightbill/internal/workflow"
)

type memoryRepo struct {
	invoices   map[uuid.UUID]Invoice
	annexures  map[uuid.UUID]LinkedAnnexure
	linked     map[uuid.UUID]uuid.UUID // annexure id -> invoice id
	unapproved map[uuid.UUID]int
	lrs        map[uuid.UUID]lr.LRRequest
	history    []workflow.StatusHistoryEntry
	rejections []workflow.RejectionRecord
	comments   []Comment
	seq        int64

	takenNumbers map[string]bool // vendor+number uniqueness
	purgeSteps   []string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices:     make(map[uuid.UUID]Invoice),
		annexures:    make(map[uuid.UUID]LinkedAnnexure),
		linked:       make(map[uuid.UUID]uuid.UUID),
		unapproved:   make(map[uuid.UUID]int),
		lrs:          make(map[uuid.UUID]lr.LRRequest),
		takenNumbers: make(map[string]bool),
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memoryRepo) GetInvoice(ctx context.Context, id uuid.UUID) (Invoice, error) {
	inv, ok := m.invoices[id]
	if !ok {
		return Invoice{}, workflow.ErrNotFound
	}
	return inv, nil
}

func (m *memoryRepo) ListInvoices(ctx context.Context, req ListInvoicesRequest) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range m.invoices {
		if req.VendorID != uuid.Nil && inv.VendorID != req.VendorID {
			continue
		}
		if req.Status != "" && inv.Status != req.Status {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (m *memoryRepo) ListHistory(ctx context.Context, id uuid.UUID) ([]workflow.StatusHistoryEntry, error) {
	var out []workflow.StatusHistoryEntry
	for _, e := range m.history {
		if e.EntityID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListRejections(ctx context.Context, id uuid.UUID) ([]workflow.RejectionRecord, error) {
	var out []workflow.RejectionRecord
	for _, r := range m.rejections {
		if r.EntityID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memoryRepo) GetInvoiceForUpdate(ctx context.Context, id uuid.UUID) (Invoice, error) {
	return m.GetInvoice(ctx, id)
}

func numberKey(vendorID uuid.UUID, number *string) string {
	if number == nil {
		return ""
	}
	return vendorID.String() + "/" + *number
}

func (m *memoryRepo) CreateInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	if key := numberKey(inv.VendorID, inv.InvoiceNumber); key != "" {
		if m.takenNumbers[key] {
			return Invoice{}, ErrDuplicateInvoiceNumber
		}
		m.takenNumbers[key] = true
	}
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	m.invoices[inv.ID] = inv
	return inv, nil
}

func (m *memoryRepo) UpdateDetails(ctx context.Context, id uuid.UUID, input UpdateInvoiceInput) error {
	inv, ok := m.invoices[id]
	if !ok {
		return workflow.ErrNotFound
	}
	if input.InvoiceNumber != nil {
		if key := numberKey(inv.VendorID, input.InvoiceNumber); m.takenNumbers[key] {
			return ErrDuplicateInvoiceNumber
		}
		inv.InvoiceNumber = input.InvoiceNumber
	}
	if input.InvoiceDate != nil {
		inv.InvoiceDate = input.InvoiceDate
	}
	if input.BillToID != nil {
		inv.BillToID = input.BillToID
	}
	if input.BillTo != nil {
		inv.BillTo = input.BillTo
	}
	if input.BillToGSTIN != nil {
		inv.BillToGSTIN = input.BillToGSTIN
	}
	if input.FileURI != nil {
		inv.FileURI = input.FileURI
	}
	if input.TaxRate != nil {
		inv.TaxRate = *input.TaxRate
	}
	m.invoices[id] = inv
	return nil
}

func (m *memoryRepo) UpdateInvoiceStatus(ctx context.Context, id uuid.UUID, status workflow.Status, patch StatusPatch) error {
	inv, ok := m.invoices[id]
	if !ok {
		return workflow.ErrNotFound
	}
	inv.Status = status
	if patch.SubmittedAt != nil {
		inv.SubmittedAt = patch.SubmittedAt
	}
	if patch.TadminApprovedAt != nil {
		inv.TadminApprovedAt = patch.TadminApprovedAt
	}
	if patch.BossApprovedAt != nil {
		inv.BossApprovedAt = patch.BossApprovedAt
	}
	if patch.RejectedAt != nil {
		inv.RejectedAt = patch.RejectedAt
	}
	if patch.PaymentApprovedAt != nil {
		inv.PaymentApprovedAt = patch.PaymentApprovedAt
	}
	m.invoices[id] = inv
	return nil
}

func (m *memoryRepo) SetDeletionRequested(ctx context.Context, id uuid.UUID, requested bool) error {
	inv, ok := m.invoices[id]
	if !ok {
		return workflow.ErrNotFound
	}
	inv.DeletionRequested = requested
	m.invoices[id] = inv
	return nil
}

func (m *memoryRepo) NextReferenceSeq(ctx context.Context) (int64, error) {
	m.seq++
	return m.seq, nil
}

func (m *memoryRepo) AnnexureForUpdate(ctx context.Context, id uuid.UUID) (LinkedAnnexure, error) {
	a, ok := m.annexures[id]
	if !ok {
		return LinkedAnnexure{}, workflow.ErrNotFound
	}
	return a, nil
}

func (m *memoryRepo) UpdateAnnexureStatus(ctx context.Context, id uuid.UUID, status workflow.Status) error {
	a, ok := m.annexures[id]
	if !ok {
		return workflow.ErrNotFound
	}
	a.Status = status
	m.annexures[id] = a
	return nil
}

func (m *memoryRepo) CountUnapprovedFileGroups(ctx context.Context, annexureID uuid.UUID) (int, error) {
	return m.unapproved[annexureID], nil
}

func (m *memoryRepo) LinkAnnexureInvoice(ctx context.Context, annexureID, invoiceID uuid.UUID) error {
	if _, taken := m.linked[annexureID]; taken {
		return &workflow.PreconditionFailedError{Reason: "annexure is already linked to an invoice"}
	}
	m.linked[annexureID] = invoiceID
	return nil
}

func (m *memoryRepo) LRsByAnnexure(ctx context.Context, annexureID uuid.UUID) ([]lr.LRRequest, error) {
	var out []lr.LRRequest
	for _, l := range m.lrs {
		if l.AnnexureID != nil && *l.AnnexureID == annexureID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memoryRepo) MarkLRsInvoiced(ctx context.Context, invoiceID uuid.UUID, lrIDs []uuid.UUID) error {
	for _, id := range lrIDs {
		l := m.lrs[id]
		l.InvoiceID = &invoiceID
		l.IsInvoiced = true
		m.lrs[id] = l
	}
	return nil
}

func (m *memoryRepo) ResetLRs(ctx context.Context, invoiceID uuid.UUID) error {
	m.purgeSteps = append(m.purgeSteps, "reset_lrs")
	for id, l := range m.lrs {
		if l.InvoiceID == nil || *l.InvoiceID != invoiceID {
			continue
		}
		l.InvoiceID = nil
		l.AnnexureID = nil
		l.GroupID = nil
		l.IsInvoiced = false
		l.LRPrice = nil
		l.PriceSettled = nil
		l.ExtraCost = nil
		l.ModifiedPrice = nil
		m.lrs[id] = l
	}
	return nil
}

func (m *memoryRepo) UnlinkAnnexure(ctx context.Context, invoiceID uuid.UUID) error {
	m.purgeSteps = append(m.purgeSteps, "unlink_annexure")
	for annexureID, linked := range m.linked {
		if linked == invoiceID {
			delete(m.linked, annexureID)
		}
	}
	return nil
}

func (m *memoryRepo) DeleteComments(ctx context.Context, invoiceID uuid.UUID) error {
	m.purgeSteps = append(m.purgeSteps, "comments")
	return nil
}

func (m *memoryRepo) DeleteDocuments(ctx context.Context, invoiceID uuid.UUID) error {
	m.purgeSteps = append(m.purgeSteps, "documents")
	return nil
}

func (m *memoryRepo) DeleteLineItems(ctx context.Context, invoiceID uuid.UUID) error {
	m.purgeSteps = append(m.purgeSteps, "line_items")
	return nil
}

func (m *memoryRepo) DeleteReferences(ctx context.Context, invoiceID uuid.UUID) error {
	m.purgeSteps = append(m.purgeSteps, "references")
	return nil
}

func (m *memoryRepo) DeleteInvoice(ctx context.Context, id uuid.UUID) error {
	m.purgeSteps = append(m.purgeSteps, "invoice")
	if _, ok := m.invoices[id]; !ok {
		return workflow.ErrNotFound
	}
	delete(m.invoices, id)
	return nil
}

func (m *memoryRepo) AppendHistory(ctx context.Context, entry workflow.StatusHistoryEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.At.IsZero() {
		entry.At = time.Now()
	}
	m.history = append(m.history, entry)
	return nil
}

func (m *memoryRepo) CreateRejection(ctx context.Context, rec workflow.RejectionRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	m.rejections = append(m.rejections, rec)
	return nil
}

func (m *memoryRepo) InsertComment(ctx context.Context, c Comment) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.comments = append(m.comments, c)
	return nil
}

func (m *memoryRepo) ListComments(ctx context.Context, invoiceID uuid.UUID) ([]Comment, error) {
	var out []Comment
	for _, c := range m.comments {
		if c.InvoiceID == invoiceID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeNotifier struct {
	events []notify.Event
}

func (f *fakeNotifier) Notify(ctx context.Context, ev notify.Event) []notify.DeliveryResult {
	f.events = append(f.events, ev)
	return nil
}

type fakeAuditor struct {
	logs []shared.AuditLog
}

func (f *fakeAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	f.logs = append(f.logs, log)
	return nil
}

type fixture struct {
	repo     *memoryRepo
	notifier *fakeNotifier
	auditor  *fakeAuditor
	service  *Service
}

func newFixture() *fixture {
	repo := newMemoryRepo()
	notifier := &fakeNotifier{}
	auditor := &fakeAuditor{}
	svc := NewService(repo, notifier, auditor, nil, slog.Default())
	return &fixture{repo: repo, notifier: notifier, auditor: auditor, service: svc}
}

func sptr(v string) *string   { return &v }
func fptr(v float64) *float64 { return &v }
func tptr(v time.Time) *time.Time {
	return &v
}

func vendorActor() shared.Actor { return shared.Actor{ID: uuid.New(), Role: workflow.RoleTVendor} }
func tadminActor() shared.Actor { return shared.Actor{ID: uuid.New(), Role: workflow.RoleTAdmin} }
func bossActor() shared.Actor   { return shared.Actor{ID: uuid.New(), Role: workflow.RoleBoss} }

// seedInvoice stores an invoice with all submission fields present.
func (f *fixture) seedInvoice(status workflow.Status) Invoice {
	inv := Invoice{
		ID:              uuid.New(),
		ReferenceNumber: "INV-1",
		InvoiceNumber:   sptr("VND-2026-001"),
		InvoiceDate:     tptr(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)),
		FileURI:         sptr("uploads/invoice.pdf"),
		TaxRate:         0.18,
		Status:          status,
		VendorID:        uuid.New(),
	}
	if status != workflow.InvoiceDraft {
		inv.SubmittedAt = tptr(time.Now())
	}
	f.repo.invoices[inv.ID] = inv
	return inv
}

func (f *fixture) linkAnnexure(invoiceID uuid.UUID, status workflow.Status, unapproved int) uuid.UUID {
	annexureID := uuid.New()
	f.repo.annexures[annexureID] = LinkedAnnexure{ID: annexureID, Status: status}
	f.repo.unapproved[annexureID] = unapproved
	f.repo.linked[annexureID] = invoiceID
	inv := f.repo.invoices[invoiceID]
	inv.AnnexureID = &annexureID
	f.repo.invoices[invoiceID] = inv
	return annexureID
}

func (f *fixture) seedAnnexureLRs(annexureID uuid.UUID, vendorID uuid.UUID, rows ...lr.LRRequest) []uuid.UUID {
	var ids []uuid.UUID
	for _, row := range rows {
		row.ID = uuid.New()
		row.TVendorID = vendorID
		row.AnnexureID = &annexureID
		f.repo.lrs[row.ID] = row
		ids = append(ids, row.ID)
	}
	return ids
}

func TestCreateFromAnnexureComputesTotals(t *testing.T) {
	f := newFixture()
	vendorID := uuid.New()
	annexureID := uuid.New()
	f.repo.annexures[annexureID] = LinkedAnnexure{ID: annexureID, Status: workflow.AnnexureDraft}
	f.seedAnnexureLRs(annexureID, vendorID,
		lr.LRRequest{LRNumber: "LR-1", FileNumber: "FILE-A", LRPrice: fptr(100), ExtraCost: fptr(10)},
		lr.LRRequest{LRNumber: "LR-2", FileNumber: "FILE-B", LRPrice: fptr(50)},
	)

	created, err := f.service.CreateFromAnnexure(context.Background(), vendorActor(), CreateFromAnnexureInput{
		AnnexureID: annexureID,
		TaxRate:    0.18,
	})
	require.NoError(t, err)
	assert.Equal(t, "INV-1", created.ReferenceNumber)
	assert.Equal(t, workflow.InvoiceDraft, created.Status)
	assert.InDelta(t, 160.0, created.Subtotal, 1e-9)
	assert.InDelta(t, 28.8, created.TaxAmount, 1e-9)
	assert.InDelta(t, 188.8, created.GrandTotal, 1e-9)
	assert.Equal(t, vendorID, created.VendorID)

	for _, l := range f.repo.lrs {
		assert.True(t, l.IsInvoiced)
		require.NotNil(t, l.InvoiceID)
		assert.Equal(t, created.ID, *l.InvoiceID)
	}
	assert.Equal(t, created.ID, f.repo.linked[annexureID])
}

func TestCreateFromAnnexureRejectsSecondInvoice(t *testing.T) {
	f := newFixture()
	vendorID := uuid.New()
	annexureID := uuid.New()
	f.repo.annexures[annexureID] = LinkedAnnexure{ID: annexureID, Status: workflow.AnnexureDraft}
	f.seedAnnexureLRs(annexureID, vendorID, lr.LRRequest{LRNumber: "LR-1", FileNumber: "FILE-A", LRPrice: fptr(100)})

	_, err := f.service.CreateFromAnnexure(context.Background(), vendorActor(), CreateFromAnnexureInput{AnnexureID: annexureID})
	require.NoError(t, err)

	_, err = f.service.CreateFromAnnexure(context.Background(), vendorActor(), CreateFromAnnexureInput{AnnexureID: annexureID})
	assert.True(t, workflow.IsPreconditionFailed(err))
}

func TestCreateFromAnnexureDuplicateNumber(t *testing.T) {
	f := newFixture()
	vendorID := uuid.New()
	for _, annexureID := range []uuid.UUID{uuid.New(), uuid.New()} {
		f.repo.annexures[annexureID] = LinkedAnnexure{ID: annexureID, Status: workflow.AnnexureDraft}
		f.seedAnnexureLRs(annexureID, vendorID, lr.LRRequest{LRNumber: "LR-" + annexureID.String()[:4], FileNumber: "FILE-A", LRPrice: fptr(100)})
		_, err := f.service.CreateFromAnnexure(context.Background(), vendorActor(), CreateFromAnnexureInput{
			AnnexureID:    annexureID,
			InvoiceNumber: sptr("VND-1"),
		})
		if f.repo.seq == 1 {
			require.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, ErrDuplicateInvoiceNumber)
		}
	}
}

func TestSubmitValidatesRequiredFields(t *testing.T) {
	f := newFixture()
	actor := vendorActor()

	cases := []struct {
		field string
		strip func(*Invoice)
	}{
		{"invoiceNumber", func(i *Invoice) { i.InvoiceNumber = nil }},
		{"invoiceDate", func(i *Invoice) { i.InvoiceDate = nil }},
		{"file", func(i *Invoice) { i.FileURI = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.field, func(t *testing.T) {
			inv := f.seedInvoice(workflow.InvoiceDraft)
			tc.strip(&inv)
			f.repo.invoices[inv.ID] = inv

			_, err := f.service.SubmitForReview(context.Background(), actor, inv.ID)
			require.True(t, workflow.IsValidation(err))
			assert.EqualError(t, err, "missing required field: "+tc.field)
			assert.Equal(t, workflow.InvoiceDraft, f.repo.invoices[inv.ID].Status)
		})
	}
}

func TestSubmitSetsSubmittedAt(t *testing.T) {
	f := newFixture()
	inv := f.seedInvoice(workflow.InvoiceDraft)

	result, err := f.service.SubmitForReview(context.Background(), vendorActor(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InvoicePendingTadminReview, result.Invoice.Status)
	require.NotNil(t, result.Invoice.SubmittedAt)

	history, _ := f.repo.ListHistory(context.Background(), inv.ID)
	require.Len(t, history, 1)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, []workflow.Role{workflow.RoleTAdmin}, f.notifier.events[0].Roles)

	thread, _ := f.service.Comments(context.Background(), inv.ID)
	require.Len(t, thread, 1)
	assert.Contains(t, thread[0].Body, "submitted for review")
}

func TestResubmitAfterRejection(t *testing.T) {
	f := newFixture()
	for _, from := range []workflow.Status{workflow.InvoiceRejectedByTadmin, workflow.InvoiceRejectedByBoss} {
		inv := f.seedInvoice(from)
		result, err := f.service.SubmitForReview(context.Background(), vendorActor(), inv.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.InvoicePendingTadminReview, result.Invoice.Status)
	}
}

func TestTadminApprovalBlockedByPendingGroups(t *testing.T) {
	f := newFixture()
	inv := f.seedInvoice(workflow.InvoicePendingTadminReview)
	f.linkAnnexure(inv.ID, workflow.AnnexurePendingTadminReview, 3)

	_, err := f.service.ApproveByTadmin(context.Background(), tadminActor(), inv.ID)
	require.True(t, workflow.IsPreconditionFailed(err))
	assert.Contains(t, err.Error(), "3 file groups are not approved")
	assert.Equal(t, workflow.InvoicePendingTadminReview, f.repo.invoices[inv.ID].Status)
}

func TestTadminApprovalCascadesAnnexure(t *testing.T) {
	f := newFixture()
	inv := f.seedInvoice(workflow.InvoicePendingTadminReview)
	annexureID := f.linkAnnexure(inv.ID, workflow.AnnexurePendingTadminReview, 0)

	result, err := f.service.ApproveByTadmin(context.Background(), tadminActor(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InvoicePendingBossReview, result.Invoice.Status)
	require.NotNil(t, result.Invoice.TadminApprovedAt)
	require.NotNil(t, result.CascadedAnnexure)
	assert.Equal(t, workflow.AnnexurePendingBossReview, *result.CascadedAnnexure)
	assert.Equal(t, workflow.AnnexurePendingBossReview, f.repo.annexures[annexureID].Status)

	// exactly one history row per affected entity
	invoiceHistory, _ := f.repo.ListHistory(context.Background(), inv.ID)
	annexureHistory, _ := f.repo.ListHistory(context.Background(), annexureID)
	require.Len(t, invoiceHistory, 1)
	require.Len(t, annexureHistory, 1)
	assert.Equal(t, "auto-forwarded", annexureHistory[0].Notes)
}

func TestTadminApprovalWithoutAnnexure(t *testing.T) {
	f := newFixture()
	inv := f.seedInvoice(workflow.InvoicePendingTadminReview)

	result, err := f.service.ApproveByTadmin(context.Background(), tadminActor(), inv.ID)
	require.NoError(t, err)
	assert.Nil(t, result.CascadedAnnexure)
}

func TestRejectionCascadeTargetsDifferByRole(t *testing.T) {
	f := newFixture()

	tadminInv := f.seedInvoice(workflow.InvoicePendingTadminReview)
	tadminAnnexure := f.linkAnnexure(tadminInv.ID, workflow.AnnexurePendingTadminReview, 0)
	result, err := f.service.Reject(context.Background(), tadminActor(), tadminInv.ID, "rates wrong")
	require.NoError(t, err)
	assert.Equal(t, workflow.InvoiceRejectedByTadmin, result.Invoice.Status)
	assert.Equal(t, workflow.AnnexureHasRejections, f.repo.annexures[tadminAnnexure].Status)

	bossInv := f.seedInvoice(workflow.InvoicePendingBossReview)
	bossAnnexure := f.linkAnnexure(bossInv.ID, workflow.AnnexurePendingBossReview, 0)
	result, err = f.service.Reject(context.Background(), bossActor(), bossInv.ID, "wrong GSTIN")
	require.NoError(t, err)
	assert.Equal(t, workflow.InvoiceRejectedByBoss, result.Invoice.Status)
	assert.Equal(t, workflow.AnnexureRejectedByBoss, f.repo.annexures[bossAnnexure].Status)

	require.Len(t, f.repo.rejections, 2)
}

func TestRejectRequiresReason(t *testing.T) {
	f := newFixture()
	inv := f.seedInvoice(workflow.InvoicePendingTadminReview)

	_, err := f.service.Reject(context.Background(), tadminActor(), inv.ID, " ")
	require.True(t, workflow.IsValidation(err))
	assert.EqualError(t, err, "missing required field: reason")
}

func TestBossRejectionAlertsTadmin(t *testing.T) {
	f := newFixture()
	inv := f.seedInvoice(workflow.InvoicePendingBossReview)

	_, err := f.service.Reject(context.Background(), bossActor(), inv.ID, "wrong GSTIN")
	require.NoError(t, err)
	require.Len(t, f.notifier.events, 1)
	assert.Equal(t, []workflow.Role{workflow.RoleTAdmin}, f.notifier.events[0].Roles)
	assert.Equal(t, []uuid.UUID{inv.VendorID}, f.notifier.events[0].Vendors)
}

func TestBossApprovalCascadesAnnexure(t *testing.T) {
	f := newFixture()
	inv := f.seedInvoice(workflow.InvoicePendingBossReview)
	annexureID := f.linkAnnexure(inv.ID, workflow.AnnexurePendingBossReview, 0)

	result, err := f.service.ApproveByBoss(context.Background(), bossActor(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InvoiceApproved, result.Invoice.Status)
	require.NotNil(t, result.Invoice.BossApprovedAt)
	assert.Equal(t, workflow.AnnexureApproved, f.repo.annexures[annexureID].Status)
}

func TestBossApprovalSkipsAlreadyApprovedAnnexure(t *testing.T) {
	f := newFixture()
	inv := f.seedInvoice(workflow.InvoicePendingBossReview)
	f.linkAnnexure(inv.ID, workflow.AnnexureApproved, 0)

	result, err := f.service.ApproveByBoss(context.Background(), bossActor(), inv.ID)
	require.NoError(t, err)
	assert.Nil(t, result.CascadedAnnexure)
}

func TestAuthorizePaymentNoCascade(t *testing.T) {
	f := newFixture()
	inv := f.seedInvoice(workflow.InvoiceApproved)
	annexureID := f.linkAnnexure(inv.ID, workflow.AnnexureApproved, 0)

	authorized, err := f.service.AuthorizePayment(context.Background(), bossActor(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InvoicePaymentApproved, authorized.Status)
	require.NotNil(t, authorized.PaymentApprovedAt)
	assert.Equal(t, workflow.AnnexureApproved, f.repo.annexures[annexureID].Status)

	annexureHistory, _ := f.repo.ListHistory(context.Background(), annexureID)
	assert.Empty(t, annexureHistory)
}

func TestRequestDeletionForbiddenOnceVisible(t *testing.T) {
	f := newFixture()
	blocked := []workflow.Status{
		workflow.InvoicePendingBossReview,
		workflow.InvoiceRejectedByBoss,
		workflow.InvoiceApproved,
		workflow.InvoicePaymentApproved,
	}
	for _, status := range blocked {
		inv := f.seedInvoice(status)
		_, err := f.service.RequestDeletion(context.Background(), vendorActor(), inv.ID)
		assert.True(t, workflow.IsPreconditionFailed(err), "status %s", status)
	}

	inv := f.seedInvoice(workflow.InvoicePendingTadminReview)
	flagged, err := f.service.RequestDeletion(context.Background(), vendorActor(), inv.ID)
	require.NoError(t, err)
	assert.True(t, flagged.DeletionRequested)
}

func TestDeletePermissionMatrix(t *testing.T) {
	f := newFixture()

	// vendor purges a never-submitted draft
	draft := f.seedInvoice(workflow.InvoiceDraft)
	require.NoError(t, f.service.Delete(context.Background(), vendorActor(), draft.ID))
	_, ok := f.repo.invoices[draft.ID]
	assert.False(t, ok)

	// vendor cannot purge once submitted
	submitted := f.seedInvoice(workflow.InvoicePendingTadminReview)
	err := f.service.Delete(context.Background(), vendorActor(), submitted.ID)
	assert.True(t, workflow.IsPreconditionFailed(err))

	// a draft that was submitted and rejected keeps SubmittedAt
	resubmittable := f.seedInvoice(workflow.InvoiceDraft)
	resubmittable.SubmittedAt = tptr(time.Now())
	f.repo.invoices[resubmittable.ID] = resubmittable
	err = f.service.Delete(context.Background(), vendorActor(), resubmittable.ID)
	assert.True(t, workflow.IsPreconditionFailed(err))

	// tadmin needs a deletion request
	pending := f.seedInvoice(workflow.InvoicePendingTadminReview)
	err = f.service.Delete(context.Background(), tadminActor(), pending.ID)
	assert.True(t, workflow.IsPreconditionFailed(err))

	flagged := f.seedInvoice(workflow.InvoicePendingTadminReview)
	flagged.DeletionRequested = true
	f.repo.invoices[flagged.ID] = flagged
	require.NoError(t, f.service.Delete(context.Background(), tadminActor(), flagged.ID))

	// boss never deletes
	other := f.seedInvoice(workflow.InvoiceDraft)
	err = f.service.Delete(context.Background(), bossActor(), other.ID)
	assert.True(t, workflow.IsUnauthorized(err))
}

func TestDeletePurgesEverything(t *testing.T) {
	f := newFixture()
	vendorID := uuid.New()
	annexureID := uuid.New()
	f.repo.annexures[annexureID] = LinkedAnnexure{ID: annexureID, Status: workflow.AnnexureDraft}
	f.seedAnnexureLRs(annexureID, vendorID, lr.LRRequest{LRNumber: "LR-1", FileNumber: "FILE-A", LRPrice: fptr(100)})

	created, err := f.service.CreateFromAnnexure(context.Background(), vendorActor(), CreateFromAnnexureInput{AnnexureID: annexureID})
	require.NoError(t, err)

	require.NoError(t, f.service.Delete(context.Background(), vendorActor(), created.ID))
	assert.Equal(t, []string{"reset_lrs", "unlink_annexure", "comments", "documents", "line_items", "references", "invoice"}, f.repo.purgeSteps)

	for _, l := range f.repo.lrs {
		assert.False(t, l.IsInvoiced)
		assert.Nil(t, l.InvoiceID)
		assert.Nil(t, l.AnnexureID)
		assert.Nil(t, l.LRPrice)
	}
	_, linked := f.repo.linked[annexureID]
	assert.False(t, linked)
}

func TestUpdateFrozenAfterSubmission(t *testing.T) {
	f := newFixture()
	inv := f.seedInvoice(workflow.InvoicePendingTadminReview)

	_, err := f.service.Update(context.Background(), vendorActor(), inv.ID, UpdateInvoiceInput{BillTo: sptr("Acme Logistics")})
	assert.True(t, workflow.IsPreconditionFailed(err))

	rejected := f.seedInvoice(workflow.InvoiceRejectedByTadmin)
	updated, err := f.service.Update(context.Background(), vendorActor(), rejected.ID, UpdateInvoiceInput{BillTo: sptr("Acme Logistics")})
	require.NoError(t, err)
	require.NotNil(t, updated.BillTo)
	assert.Equal(t, "Acme Logistics", *updated.BillTo)
}

// TestServiceDeniesEveryIllegalTransition drives each transition endpoint
// from every status with every role and checks that combinations outside
// the table are refused with stored state untouched.
func TestServiceDeniesEveryIllegalTransition(t *testing.T) {
	type action struct {
		name    string
		allowed map[workflow.Status][]workflow.Role
		invoke  func(f *fixture, actor shared.Actor, id uuid.UUID) error
	}
	actions := []action{
		{
			name: "submit",
			allowed: map[workflow.Status][]workflow.Role{
				workflow.InvoiceDraft:            {workflow.RoleTVendor},
				workflow.InvoiceRejectedByTadmin: {workflow.RoleTVendor},
				workflow.InvoiceRejectedByBoss:   {workflow.RoleTVendor},
			},
			invoke: func(f *fixture, actor shared.Actor, id uuid.UUID) error {
				_, err := f.service.SubmitForReview(context.Background(), actor, id)
				return err
			},
		},
		{
			name: "tadmin_approve",
			allowed: map[workflow.Status][]workflow.Role{
				workflow.InvoicePendingTadminReview: {workflow.RoleTAdmin},
			},
			invoke: func(f *fixture, actor shared.Actor, id uuid.UUID) error {
				_, err := f.service.ApproveByTadmin(context.Background(), actor, id)
				return err
			},
		},
		{
			name: "reject",
			allowed: map[workflow.Status][]workflow.Role{
				workflow.InvoicePendingTadminReview: {workflow.RoleTAdmin},
				workflow.InvoicePendingBossReview:   {workflow.RoleBoss},
			},
			invoke: func(f *fixture, actor shared.Actor, id uuid.UUID) error {
				_, err := f.service.Reject(context.Background(), actor, id, "reason")
				return err
			},
		},
		{
			name: "boss_approve",
			allowed: map[workflow.Status][]workflow.Role{
				workflow.InvoicePendingBossReview: {workflow.RoleBoss},
			},
			invoke: func(f *fixture, actor shared.Actor, id uuid.UUID) error {
				_, err := f.service.ApproveByBoss(context.Background(), actor, id)
				return err
			},
		},
		{
			name: "authorize_payment",
			allowed: map[workflow.Status][]workflow.Role{
				workflow.InvoiceApproved: {workflow.RoleBoss},
			},
			invoke: func(f *fixture, actor shared.Actor, id uuid.UUID) error {
				_, err := f.service.AuthorizePayment(context.Background(), actor, id)
				return err
			},
		},
	}

	roles := []workflow.Role{workflow.RoleTVendor, workflow.RoleTAdmin, workflow.RoleBoss, workflow.RoleAdmin}
	for _, act := range actions {
		for _, from := range workflow.InvoiceStatuses() {
			for _, role := range roles {
				permitted := false
				for _, allowedRole := range act.allowed[from] {
					if allowedRole == role {
						permitted = true
					}
				}
				if permitted {
					continue
				}
				name := fmt.Sprintf("%s/%s/%s", act.name, from, role)
				t.Run(name, func(t *testing.T) {
					f := newFixture()
					inv := f.seedInvoice(from)
					err := act.invoke(f, shared.Actor{ID: uuid.New(), Role: role}, inv.ID)
					require.True(t, workflow.IsUnauthorized(err), "expected denial, got %v", err)
					assert.Equal(t, from, f.repo.invoices[inv.ID].Status)
					assert.Empty(t, f.repo.history)
				})
			}
		}
	}
}

// TestScenarioInvoiceWalkthrough mirrors the full approval walk: vendor
// submits, tadmin approves with annexure auto-forward, boss rejects with
// a recorded reason cascading onto the annexure.
func TestScenarioInvoiceWalkthrough(t *testing.T) {
	f := newFixture()
	vendorID := uuid.New()
	annexureID := uuid.New()
	f.repo.annexures[annexureID] = LinkedAnnexure{ID: annexureID, Status: workflow.AnnexureDraft}
	f.seedAnnexureLRs(annexureID, vendorID,
		lr.LRRequest{LRNumber: "L1", FileNumber: "fileA", LRPrice: fptr(100)},
		lr.LRRequest{LRNumber: "L2", FileNumber: "fileB", LRPrice: fptr(50)},
	)

	vendor := shared.Actor{ID: uuid.New(), Role: workflow.RoleTVendor}
	created, err := f.service.CreateFromAnnexure(context.Background(), vendor, CreateFromAnnexureInput{AnnexureID: annexureID})
	require.NoError(t, err)
	assert.Equal(t, "INV-1", created.ReferenceNumber)
	assert.Equal(t, workflow.InvoiceDraft, created.Status)

	// vendor fills in the document and submits
	_, err = f.service.Update(context.Background(), vendor, created.ID, UpdateInvoiceInput{
		InvoiceNumber: sptr("VND-42"),
		InvoiceDate:   tptr(time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)),
		FileURI:       sptr("uploads/vnd-42.pdf"),
	})
	require.NoError(t, err)
	submitted, err := f.service.SubmitForReview(context.Background(), vendor, created.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InvoicePendingTadminReview, submitted.Invoice.Status)

	// annexure fully approved, tadmin approves and the annexure follows
	a := f.repo.annexures[annexureID]
	a.Status = workflow.AnnexurePendingTadminReview
	f.repo.annexures[annexureID] = a
	f.repo.unapproved[annexureID] = 0

	approved, err := f.service.ApproveByTadmin(context.Background(), tadminActor(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.InvoicePendingBossReview, approved.Invoice.Status)
	assert.Equal(t, workflow.AnnexurePendingBossReview, f.repo.annexures[annexureID].Status)

	// boss rejects, both entities land on REJECTED_BY_BOSS
	rejected, err := f.service.Reject(context.Background(), bossActor(), created.ID, "wrong GSTIN")
	require.NoError(t, err)
	assert.Equal(t, workflow.InvoiceRejectedByBoss, rejected.Invoice.Status)
	assert.Equal(t, workflow.AnnexureRejectedByBoss, f.repo.annexures[annexureID].Status)

	rejections, _ := f.repo.ListRejections(context.Background(), created.ID)
	require.Len(t, rejections, 1)
	assert.Equal(t, "wrong GSTIN", rejections[0].Reason)

	// one history row per entity per transition: 3 invoice moves, 2 cascades
	invoiceHistory, _ := f.repo.ListHistory(context.Background(), created.ID)
	annexureHistory, _ := f.repo.ListHistory(context.Background(), annexureID)
	assert.Len(t, invoiceHistory, 3)
	assert.Len(t, annexureHistory, 2)
}
