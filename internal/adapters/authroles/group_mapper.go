// Package authroles maps identity-provider group membership onto dashboard
// roles for SSO sign-ins, where the IdP knows groups but not CLIKA roles.
package authroles

import (
	domainauth "github.com/clika/admin-api/internal/domain/auth"
)

// GroupMapper maps groups by simple string membership rules. Matches are
// checked most privileged first, so a user in both the admin and reviewer
// groups gets admin.
type GroupMapper struct {
	AdminGroup      string
	EditorGroup     string
	ReviewerGroup   string
	AdvertiserGroup string
	AnalystGroup    string
}

// Map returns the role for the given groups, or RoleNone when no configured
// group matches.
func (m GroupMapper) Map(groups []string) domainauth.Role {
	rules := []struct {
		group string
		role  domainauth.Role
	}{
		{m.AdminGroup, domainauth.RoleAdmin},
		{m.EditorGroup, domainauth.RoleEditor},
		{m.ReviewerGroup, domainauth.RoleReviewer},
		{m.AdvertiserGroup, domainauth.RoleAdvertiser},
		{m.AnalystGroup, domainauth.RoleAnalyst},
	}

	for _, rule := range rules {
		if rule.group == "" {
			continue
		}
		for _, g := range groups {
			if g == rule.group {
				return rule.role
			}
		}
	}
	return domainauth.RoleNone
}
