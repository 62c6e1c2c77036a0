package repo

import (
	gometrics "github.com/rcrowley/go-metrics"
)

type metrics struct {
	registry gometrics.Registry
	commit   gometrics.Timer
	snapshot gometrics.Timer
	rollback gometrics.Timer
	aborts   gometrics.Counter
	seqs     gometrics.Counter
}

func newMetrics() *metrics {
	reg := gometrics.NewRegistry()
	return &metrics{
		registry: reg,
		commit:   gometrics.NewRegisteredTimer("repo.commit", reg),
		snapshot: gometrics.NewRegisteredTimer("repo.snapshot", reg),
		rollback: gometrics.NewRegisteredTimer("repo.rollback", reg),
		aborts:   gometrics.NewRegisteredCounter("repo.aborts", reg),
		seqs:     gometrics.NewRegisteredCounter("repo.next_seq", reg),
	}
}

// Stats is a point-in-time summary of repository activity
type Stats struct {
	Commits        int64   `msgpack:"commits" json:"commits"`
	CommitMeanMs   float64 `msgpack:"commit_mean_ms" json:"commit_mean_ms"`
	Aborts         int64   `msgpack:"aborts" json:"aborts"`
	Snapshots      int64   `msgpack:"snapshots" json:"snapshots"`
	SnapshotMeanMs float64 `msgpack:"snapshot_mean_ms" json:"snapshot_mean_ms"`
	Rollbacks      int64   `msgpack:"rollbacks" json:"rollbacks"`
	Sequences      int64   `msgpack:"sequences" json:"sequences"`
}

// Metrics returns the registry the repository reports to
func (r *Repo) Metrics() gometrics.Registry { return r.metrics.registry }

// Stats summarizes the repository metrics
func (r *Repo) Stats() Stats {
	commit := r.metrics.commit
	snapshot := r.metrics.snapshot
	return Stats{
		Commits:        commit.Count(),
		CommitMeanMs:   commit.Mean() / 1e6,
		Aborts:         r.metrics.aborts.Count(),
		Snapshots:      snapshot.Count(),
		SnapshotMeanMs: snapshot.Mean() / 1e6,
		Rollbacks:      r.metrics.rollback.Count(),
		Sequences:      r.metrics.seqs.Count(),
	}
}
