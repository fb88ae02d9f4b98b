package campaign

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/ekemper/leadGen-sub001/internal/domain"
	"github.com/ekemper/leadGen-sub001/internal/services"
)

// ValidationReport is the result of checking a campaign's start
// prerequisites. Given unchanged campaign and breaker state the report is
// deterministic, so repeated validation yields identical reports.
type ValidationReport struct {
	Valid bool `json:"valid"`
	// Errors lists input problems (URL, record count).
	Errors []string `json:"errors,omitempty"`
	// OpenServices lists required services whose breakers are open.
	OpenServices []string `json:"open_services,omitempty"`
	// CriticalOpen is set when the lead-source service itself is open.
	CriticalOpen bool `json:"critical_open"`
}

// Ready reports whether the campaign may start.
func (r *ValidationReport) Ready() bool {
	return r.Valid && len(r.OpenServices) == 0
}

// ValidateStartPrerequisites checks campaign input and required service
// health without mutating anything.
func (s *Service) ValidateStartPrerequisites(ctx context.Context, c *domain.Campaign) *ValidationReport {
	report := &ValidationReport{}

	report.Errors = append(report.Errors, s.validateSourceURL(c.SourceURL)...)

	if c.TotalRecords <= 0 || c.TotalRecords > s.maxRecords {
		report.Errors = append(report.Errors, fmt.Sprintf(
			"record count must be between 1 and %d, got %d", s.maxRecords, c.TotalRecords,
		))
	}

	report.Valid = len(report.Errors) == 0

	for _, service := range services.Required() {
		if s.breakers.IsOpen(ctx, service) {
			report.OpenServices = append(report.OpenServices, service)
			if service == services.Critical {
				report.CriticalOpen = true
			}
		}
	}

	return report
}

// validateSourceURL checks format and the host whitelist.
func (s *Service) validateSourceURL(raw string) []string {
	var errs []string

	if strings.TrimSpace(raw) == "" {
		return []string{"source url is required"}
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return []string{fmt.Sprintf("source url %q is not a valid URL", raw)}
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Sprintf("source url scheme %q is not allowed", u.Scheme))
	}

	if len(s.allowedHosts) > 0 {
		host := strings.ToLower(u.Hostname())
		allowed := false
		for _, h := range s.allowedHosts {
			if host == strings.ToLower(h) {
				allowed = true
				break
			}
		}
		if !allowed {
			errs = append(errs, fmt.Sprintf("source url host %q is not whitelisted", u.Hostname()))
		}
	}

	return errs
}
