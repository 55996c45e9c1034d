package application

import "strings"

// AuthorizationPolicy is the single capability check behind every admin
// payout and affiliate-review operation.
type AuthorizationPolicy interface {
	CanApprovePayouts(actor Actor) bool
}

type RolePolicy struct {
	roles map[string]struct{}
}

func NewRolePolicy(roles ...string) RolePolicy {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r != "" {
			set[r] = struct{}{}
		}
	}
	return RolePolicy{roles: set}
}

func (p RolePolicy) CanApprovePayouts(actor Actor) bool {
	if strings.TrimSpace(actor.SubjectID) == "" {
		return false
	}
	_, ok := p.roles[strings.ToLower(strings.TrimSpace(actor.Role))]
	return ok
}
