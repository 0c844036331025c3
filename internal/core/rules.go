package core

import (
	"context"
	"fmt"
	"strconv"

	"spacenet/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(EdgeEndpointRule())
	engine.Register(SelfLoopRule())
	return engine
}

func edgeEndpoints(row *domain.Row) (origin, destination int64, ok bool) {
	o, okO := row.Columns["origin_id"].(int64)
	d, okD := row.Columns["destination_id"].(int64)
	return o, d, okO && okD
}

// EdgeEndpointRule warns when a created or updated edge references a node id
// that does not exist. Edges may be loaded before their nodes, so the rule
// never blocks.
func EdgeEndpointRule() domain.Rule {
	return edgeEndpointRule{}
}

type edgeEndpointRule struct{}

func (edgeEndpointRule) Name() string { return "edge_endpoints" }

func (r edgeEndpointRule) Evaluate(_ context.Context, view domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Kind != domain.KindEdge || change.After == nil {
			continue
		}
		origin, destination, ok := edgeEndpoints(change.After)
		if !ok {
			continue
		}
		for _, end := range []struct {
			role string
			id   int64
		}{{"origin", origin}, {"destination", destination}} {
			nodeID := strconv.FormatInt(end.id, 10)
			if _, found := view.Find(domain.KindNode, nodeID); found {
				continue
			}
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("edge %s references missing %s node %s", change.After.ID, end.role, nodeID),
				Kind:     domain.KindEdge,
				EntityID: change.After.ID,
			})
		}
	}
	return res, nil
}

// SelfLoopRule warns when an edge starts and ends at the same node.
func SelfLoopRule() domain.Rule {
	return selfLoopRule{}
}

type selfLoopRule struct{}

func (selfLoopRule) Name() string { return "edge_self_loop" }

func (r selfLoopRule) Evaluate(_ context.Context, _ domain.TransactionView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Kind != domain.KindEdge || change.After == nil {
			continue
		}
		origin, destination, ok := edgeEndpoints(change.After)
		if !ok || origin != destination {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("edge %s starts and ends at node %d", change.After.ID, origin),
			Kind:     domain.KindEdge,
			EntityID: change.After.ID,
		})
	}
	return res, nil
}
