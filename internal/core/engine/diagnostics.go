package engine

import (
	"sort"

	"github.com/crawlpace/crawlpace/internal/core"
)

// RobotsStatsSource is implemented by robots policies that track cache use.
type RobotsStatsSource interface {
	Stats() core.RobotsStats
}

// Diagnostics assembles a read-only snapshot of every pacing component.
func (p *Pipeline) Diagnostics() core.Diagnostics {
	domains := make(map[string]*core.DomainDiagnostics)
	order := make([]string, 0)
	entry := func(domain string) *core.DomainDiagnostics {
		if d, ok := domains[domain]; ok {
			return d
		}
		d := &core.DomainDiagnostics{Domain: domain}
		domains[domain] = d
		order = append(order, domain)
		return d
	}

	if p.Pacer != nil && p.Pacer.Admission != nil {
		for _, stats := range p.Pacer.Admission.Snapshot() {
			entry(stats.Domain).Admission = &stats
		}
	}
	if p.Signals != nil {
		for _, stats := range p.Signals.Snapshot() {
			entry(stats.Domain).Signals = &stats
		}
	}
	for _, stats := range p.Adaptive.Snapshot() {
		entry(stats.Domain).Adaptive = &stats
	}

	diag := core.Diagnostics{
		GeneratedAt:     p.now(),
		AdaptiveEnabled: p.Adaptive.Enabled(),
		Domains:         make([]core.DomainDiagnostics, 0, len(order)),
	}
	sort.Strings(order)
	for _, domain := range order {
		diag.Domains = append(diag.Domains, *domains[domain])
	}
	if source, ok := p.Robots.(RobotsStatsSource); ok {
		diag.Robots = source.Stats()
	}
	return diag
}

// DomainDiagnostics returns the snapshot for one domain, or nil when no
// component has seen it.
func (p *Pipeline) DomainDiagnostics(domain string) *core.DomainDiagnostics {
	d := &core.DomainDiagnostics{Domain: domain}
	if p.Pacer != nil && p.Pacer.Admission != nil {
		d.Admission = p.Pacer.Admission.DomainSnapshot(domain)
	}
	if p.Signals != nil {
		d.Signals = p.Signals.DomainSnapshot(domain)
	}
	d.Adaptive = p.Adaptive.DomainSnapshot(domain)
	if d.Admission == nil && d.Signals == nil && d.Adaptive == nil {
		return nil
	}
	return d
}
