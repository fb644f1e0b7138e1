// Package linker attributes a purchase Event to its originating lead
// Event, copying acquisition fields forward and recording the edge
// (spec §2 component (implicit in intake), §4.6).
package linker

import (
	"context"

	"github.com/ignite/eventflow/internal/domain"
	"github.com/ignite/eventflow/internal/pkg/logger"
)

// Repository is the persistence contract the Linker needs; satisfied by
// internal/store/postgres.Store.
type Repository interface {
	ListEventsByEmail(ctx context.Context, email string) ([]*domain.Event, error)
	UpdateEvent(ctx context.Context, event *domain.Event) error
	HasRelationship(ctx context.Context, parentID, childID int64, typ domain.RelationshipType) (bool, error)
	CreateRelationship(ctx context.Context, rel *domain.EventRelationship) error
}

// Linker implements the purchase-to-lead attribution algorithm.
type Linker struct {
	repo Repository
}

// New constructs a Linker backed by repo.
func New(repo Repository) *Linker {
	return &Linker{repo: repo}
}

// LinkPurchase runs the full algorithm for a newly-persisted purchase
// event (spec §4.6). Failures are logged and swallowed — they must
// never block the fanout.
func (l *Linker) LinkPurchase(ctx context.Context, purchase *domain.Event) {
	if !purchase.IsPurchase() || purchase.Email == "" {
		return
	}
	if err := l.linkPurchase(ctx, purchase); err != nil {
		logger.Warn("linker: failed to link purchase", "error", err, "event_id", purchase.EventID)
	}
}

func (l *Linker) linkPurchase(ctx context.Context, purchase *domain.Event) error {
	candidates, err := l.repo.ListEventsByEmail(ctx, purchase.Email)
	if err != nil {
		return err
	}

	lead := firstLead(candidates, purchase.ID)
	if lead == nil {
		return nil
	}

	already, err := l.repo.HasRelationship(ctx, lead.ID, purchase.ID, domain.RelationshipLeadToPurchase)
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	if purchase.Acquisition.IsEmpty() {
		purchase.Acquisition = lead.Acquisition
		if err := l.repo.UpdateEvent(ctx, purchase); err != nil {
			return err
		}
	}

	rel := &domain.EventRelationship{
		ParentID: lead.ID,
		ChildID:  purchase.ID,
		Type:     domain.RelationshipLeadToPurchase,
		Criteria: domain.RelationshipCriteria{
			EmailMatch: true,
			IPMatch:    lead.IP != "" && lead.IP == purchase.IP,
		},
	}
	return l.repo.CreateRelationship(ctx, rel)
}

// firstLead returns the newest (candidates is newest-first) lead event
// other than excludeID, or nil (spec §4.6 steps 1-2).
func firstLead(candidates []*domain.Event, excludeID int64) *domain.Event {
	for _, e := range candidates {
		if e.ID == excludeID {
			continue
		}
		if e.EventType == domain.EventTypeLead {
			return e
		}
	}
	return nil
}
