package normalize

import (
	"log/slog"
	"strings"

	"github.com/ingsis25/snippet-searcher/internal/model"
)

// Compliance maps a backend status string onto the four-value enum.
//
// The comparison is case-insensitive and treats underscores and hyphens as
// the same separator, so "NOT_COMPLIANT", "not-compliant" and "Not_Compliant"
// all land on ComplianceNotCompliant. The snippet service's legacy "SUCCESS"
// value means compliant. Anything unrecognized defaults to pending with a
// warning — a bad status must never break a listing.
func Compliance(raw string, logger *slog.Logger) model.ComplianceStatus {
	if raw == "" {
		return model.CompliancePending
	}

	normalized := strings.ReplaceAll(strings.ToLower(raw), "_", "-")
	switch normalized {
	case "pending":
		return model.CompliancePending
	case "failed":
		return model.ComplianceFailed
	case "not-compliant":
		return model.ComplianceNotCompliant
	case "compliant", "success":
		return model.ComplianceCompliant
	default:
		logger.Warn("unknown compliance status, defaulting to pending",
			slog.String("status", raw),
		)
		return model.CompliancePending
	}
}
