package campaign

import "strings"

// Guard is the authorization check for every mutating engine operation.
// There is exactly one designated operator; no roles, no delegation.
type Guard struct {
	operator string
}

func NewGuard(operatorID string) *Guard {
	return &Guard{operator: strings.TrimSpace(operatorID)}
}

func (g *Guard) Authorize(actorID string) bool {
	return g.operator != "" && strings.TrimSpace(actorID) == g.operator
}
