package workflow

// transitionKey identifies one edge in a state machine.
type transitionKey struct {
	From Status
	To   Status
}

type roleSet map[Role]bool

// legal is the single source of truth for role-gated transitions. Cascade
// moves applied by the engine on a linked entity are not listed here; they
// go through the cascade table below.
var legal = map[EntityKind]map[transitionKey]roleSet{
	KindInvoice: {
		{InvoiceDraft, InvoicePendingTadminReview}:            {RoleTVendor: true},
		{InvoiceRejectedByTadmin, InvoicePendingTadminReview}: {RoleTVendor: true},
		{InvoiceRejectedByBoss, InvoicePendingTadminReview}:   {RoleTVendor: true},
		{InvoicePendingTadminReview, InvoicePendingBossReview}: {RoleTAdmin: true},
		{InvoicePendingTadminReview, InvoiceRejectedByTadmin}:  {RoleTAdmin: true},
		{InvoicePendingBossReview, InvoiceApproved}:            {RoleBoss: true},
		{InvoicePendingBossReview, InvoiceRejectedByBoss}:      {RoleBoss: true},
		{InvoiceApproved, InvoicePaymentApproved}:              {RoleBoss: true},
	},
	KindAnnexure: {
		{AnnexureDraft, AnnexurePendingTadminReview}:          {RoleTVendor: true},
		{AnnexureHasRejections, AnnexurePendingTadminReview}:  {RoleTVendor: true},
		{AnnexureRejectedByBoss, AnnexurePendingTadminReview}: {RoleTVendor: true},
		{AnnexurePendingTadminReview, AnnexurePendingBossReview}: {RoleTAdmin: true},
		{AnnexurePartiallyApproved, AnnexurePendingBossReview}:   {RoleTAdmin: true},
		{AnnexurePendingBossReview, AnnexureApproved}:            {RoleBoss: true},
		{AnnexurePendingBossReview, AnnexureRejectedByBoss}:      {RoleBoss: true},
	},
	KindFileGroup: {
		{FileGroupPending, FileGroupApproved}:  {RoleTAdmin: true},
		{FileGroupPending, FileGroupRejected}:  {RoleTAdmin: true},
		{FileGroupRejected, FileGroupApproved}: {RoleTAdmin: true},
		{FileGroupApproved, FileGroupRejected}: {RoleTAdmin: true},
	},
}

// CanTransition reports whether role may move a kind entity from one
// status to another. Pure lookup, no side effects.
func CanTransition(kind EntityKind, role Role, from, to Status) bool {
	edges, ok := legal[kind]
	if !ok {
		return false
	}
	roles, ok := edges[transitionKey{From: from, To: to}]
	if !ok {
		return false
	}
	return roles[role]
}

// PermittedTargets returns the statuses role may move the entity to from
// its current status.
func PermittedTargets(kind EntityKind, role Role, from Status) []Status {
	var out []Status
	for key, roles := range legal[kind] {
		if key.From == from && roles[role] {
			out = append(out, key.To)
		}
	}
	return out
}

// cascadeRule describes how an invoice transition propagates to its
// linked annexure.
type cascadeRule struct {
	target   Status
	onlyFrom []Status // empty means any non-target source status
}

// invoiceCascade maps a committed invoice status to the annexure status it
// drags along. TADMIN and BOSS rejections land on different annexure
// statuses on purpose: HAS_REJECTIONS is the vendor-facing "needs fixing"
// signal, REJECTED_BY_BOSS reverses already-approved work.
var invoiceCascade = map[Status]cascadeRule{
	InvoiceRejectedByTadmin:  {target: AnnexureHasRejections},
	InvoiceRejectedByBoss:    {target: AnnexureRejectedByBoss},
	InvoicePendingBossReview: {target: AnnexurePendingBossReview, onlyFrom: []Status{AnnexurePendingTadminReview, AnnexurePartiallyApproved}},
	InvoiceApproved:          {target: AnnexureApproved},
}

// CascadeOnInvoice resolves the annexure status implied by an invoice
// moving to invoiceTo, given the annexure's current status. ok is false
// when no cascade applies (including when the annexure is already at the
// target).
func CascadeOnInvoice(invoiceTo, annexureFrom Status) (Status, bool) {
	rule, ok := invoiceCascade[invoiceTo]
	if !ok {
		return "", false
	}
	if annexureFrom == rule.target {
		return "", false
	}
	if len(rule.onlyFrom) == 0 {
		return rule.target, true
	}
	for _, from := range rule.onlyFrom {
		if annexureFrom == from {
			return rule.target, true
		}
	}
	return "", false
}
