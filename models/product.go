package models

import "strings"

// Product is one entry of /data/product_list/.
type Product struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Check is one step of a product's QC suite.
type Check struct {
	CheckIdent  string `json:"check_ident"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	System      bool   `json:"system"`
}

// Optional reports whether the user may deselect the check.
func (c Check) Optional() bool {
	return !c.Required && !c.System
}

// ProductDetail is the body of /data/product/<ident>/.
type ProductDetail struct {
	ProductIdent string `json:"product_ident"`
	JobStatus    struct {
		Checks []Check `json:"checks"`
	} `json:"job_status"`
}

func (p *ProductDetail) Checks() []Check {
	return p.JobStatus.Checks
}

// SkippedChecks lists the optional checks absent from selected, in suite
// order. Required and system checks always run.
func (p *ProductDetail) SkippedChecks(selected []string) []string {
	chosen := make(map[string]bool, len(selected))
	for _, s := range selected {
		chosen[strings.TrimSpace(s)] = true
	}
	var skipped []string
	for _, c := range p.JobStatus.Checks {
		if c.Optional() && !chosen[c.CheckIdent] {
			skipped = append(skipped, c.CheckIdent)
		}
	}
	return skipped
}

// OptionalChecks returns the idents the user may toggle.
func (p *ProductDetail) OptionalChecks() []string {
	var out []string
	for _, c := range p.JobStatus.Checks {
		if c.Optional() {
			out = append(out, c.CheckIdent)
		}
	}
	return out
}
