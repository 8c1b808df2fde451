package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics считает исходы мутаций активов
type Metrics interface {
	IncMutation(kind, outcome string)
	IncPolicyDenied(kind string)
	IncArchiveCreated(kind string)
	IncRestore(kind, outcome string)
	IncAuditFailure(stage string)
	IncUploadsExpired(count int)
}

// Noop ничего не публикует
type Noop struct{}

func (Noop) IncMutation(string, string) {}
func (Noop) IncPolicyDenied(string)     {}
func (Noop) IncArchiveCreated(string)   {}
func (Noop) IncRestore(string, string)  {}
func (Noop) IncAuditFailure(string)     {}
func (Noop) IncUploadsExpired(int)      {}

// Prom - счетчики Prometheus
type Prom struct {
	mutations      *prometheus.CounterVec
	policyDenied   *prometheus.CounterVec
	archives       *prometheus.CounterVec
	restores       *prometheus.CounterVec
	auditFailures  *prometheus.CounterVec
	uploadsExpired prometheus.Counter
	once           sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_mutations_total",
			Help:      "Asset mutation requests by kind and outcome",
		}, []string{"kind", "outcome"}),
		policyDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_policy_denied_total",
			Help:      "Mutations rejected by the cooldown window",
		}, []string{"kind"}),
		archives: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_archive_entries_total",
			Help:      "Archive entries created before overwrite",
		}, []string{"kind"}),
		restores: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "asset_restores_total",
			Help:      "Restore attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		auditFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_failures_total",
			Help:      "Audit log failures by stage",
		}, []string{"stage"}),
		uploadsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_sessions_expired_total",
			Help:      "Upload sessions expired without acknowledgement",
		}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.mutations, p.policyDenied, p.archives, p.restores, p.auditFailures, p.uploadsExpired)
	})
}

func (p *Prom) IncMutation(kind, outcome string) {
	p.mutations.WithLabelValues(kind, outcome).Inc()
}

func (p *Prom) IncPolicyDenied(kind string) {
	p.policyDenied.WithLabelValues(kind).Inc()
}

func (p *Prom) IncArchiveCreated(kind string) {
	p.archives.WithLabelValues(kind).Inc()
}

func (p *Prom) IncRestore(kind, outcome string) {
	p.restores.WithLabelValues(kind, outcome).Inc()
}

func (p *Prom) IncAuditFailure(stage string) {
	p.auditFailures.WithLabelValues(stage).Inc()
}

func (p *Prom) IncUploadsExpired(count int) {
	if count > 0 {
		p.uploadsExpired.Add(float64(count))
	}
}

// Handler отдает /metrics
func Handler() http.Handler {
	return promhttp.Handler()
}
