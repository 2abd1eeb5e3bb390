package registry

import "context"

// Standalone adapts Local to the context-taking surface shared with
// Distributed, for single-node deployments without a shared registry.
type Standalone struct {
	*Local
}

func NewStandalone(local *Local) Standalone {
	return Standalone{Local: local}
}

func (s Standalone) Attach(_ context.Context, chargerID, transport string) {
	s.Local.Attach(chargerID, transport)
}

func (s Standalone) Detach(_ context.Context, chargerID string) {
	s.Local.Detach(chargerID)
}

func (s Standalone) Touch(_ context.Context, chargerID string) {
	s.Local.Touch(chargerID)
}
