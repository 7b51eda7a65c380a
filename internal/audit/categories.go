package audit

// AuditRef ties an audit into a category with its weight toward the
// category score. Weight 0 audits appear in the category without moving it.
type AuditRef struct {
	ID     string  `json:"id"`
	Weight float64 `json:"weight"`
}

// CategoryDef is one scored grouping of audits.
type CategoryDef struct {
	ID        string
	Title     string
	AuditRefs []AuditRef
}

// Categories returns the builtin category definitions in display order.
func Categories() []CategoryDef {
	return []CategoryDef{
		{
			ID:    "performance",
			Title: "Performance",
			AuditRefs: []AuditRef{
				{ID: "first-contentful-paint", Weight: 10},
				{ID: "largest-contentful-paint", Weight: 25},
				{ID: "total-blocking-time", Weight: 30},
				{ID: "cumulative-layout-shift", Weight: 25},
				{ID: "interactive", Weight: 10},
				{ID: "server-response-time", Weight: 0},
				{ID: "mainthread-work-breakdown", Weight: 0},
				{ID: "long-tasks", Weight: 0},
				{ID: "network-requests", Weight: 0},
				{ID: "user-timings", Weight: 0},
				{ID: "third-party-summary", Weight: 0},
			},
		},
		{
			ID:    "best-practices",
			Title: "Best Practices",
			AuditRefs: []AuditRef{
				{ID: "csp-xss", Weight: 1},
				{ID: "errors-in-console", Weight: 1},
			},
		},
		{
			ID:    "seo",
			Title: "SEO",
			AuditRefs: []AuditRef{
				{ID: "viewport", Weight: 1},
				{ID: "document-title", Weight: 1},
				{ID: "http-status-code", Weight: 1},
			},
		},
	}
}
