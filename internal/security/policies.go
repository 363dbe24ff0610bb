package security

import (
	"time"

	"github.com/eddydoes42/FieldOpsPro-sub005/pkg/models"
)

// DefaultPolicies returns the policy set registered at startup. Order
// matters: policies evaluate in this order.
func DefaultPolicies() []models.SecurityPolicy {
	return []models.SecurityPolicy{
		{
			Name:     "api_rate_limiting",
			Severity: models.SeverityMedium,
			Enabled:  true,
			Rules: []models.SecurityRule{
				{Type: models.RuleRateLimit, Action: models.ActionAudit, Category: "api", Threshold: 100, Window: time.Minute},
			},
		},
		{
			Name:     "auth_rate_limiting",
			Severity: models.SeverityHigh,
			Enabled:  true,
			Rules: []models.SecurityRule{
				{Type: models.RuleRateLimit, Action: models.ActionDeny, Category: "auth", Threshold: 5, Window: time.Minute},
			},
		},
		{
			Name:     "authentication_required",
			Severity: models.SeverityCritical,
			Enabled:  true,
			Rules: []models.SecurityRule{
				{Type: models.RuleAuthentication, Action: models.ActionDeny},
			},
		},
		{
			Name:     "permission_enforcement",
			Severity: models.SeverityHigh,
			Enabled:  true,
			Rules: []models.SecurityRule{
				{Type: models.RulePermission, Action: models.ActionDeny},
			},
		},
		{
			Name:     "sensitive_data_protection",
			Severity: models.SeverityCritical,
			Enabled:  true,
			Rules: []models.SecurityRule{
				{Type: models.RuleDataAccess, Action: models.ActionAlert},
			},
		},
		{
			Name:     "file_upload_safety",
			Severity: models.SeverityHigh,
			Enabled:  true,
			Rules: []models.SecurityRule{
				{Type: models.RuleFileUpload, Action: models.ActionDeny},
			},
		},
	}
}
