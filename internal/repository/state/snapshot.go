package state

import (
	"maps"
	"slices"
	"time"

	"github.com/oshokin/jobctl/internal/domain/job"
)

// Snapshot is everything the sandbox scheduler knows.
type Snapshot struct {
	// Jobs are keyed by job.Key.
	Jobs map[string]*Job `yaml:"jobs"`
	// Quotas are keyed by role.
	Quotas map[string]job.Quota `yaml:"quotas"`
	// Updates are the pending update cycles, keyed by job.Key.
	Updates map[string]*Update `yaml:"updates"`
	// UpdatedAt is the time of the last mutation.
	UpdatedAt time.Time `yaml:"updated_at"`
}

// Job is a scheduled job and its tasks.
type Job struct {
	Config job.Config `yaml:"config"`
	Tasks  []job.Task `yaml:"tasks"`
}

// Update is an update cycle opened by StartUpdate.
type Update struct {
	Token    string     `yaml:"token"`
	Previous job.Config `yaml:"previous"`
	Desired  job.Config `yaml:"desired"`
	// Updated are the shards relaunched with the desired configuration.
	Updated []int `yaml:"updated,omitempty"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Jobs:    map[string]*Job{},
		Quotas:  map[string]job.Quota{},
		Updates: map[string]*Update{},
	}
}

// Clone returns a deep copy of the snapshot.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Jobs:      make(map[string]*Job, len(s.Jobs)),
		Quotas:    maps.Clone(s.Quotas),
		Updates:   make(map[string]*Update, len(s.Updates)),
		UpdatedAt: s.UpdatedAt,
	}

	if out.Quotas == nil {
		out.Quotas = map[string]job.Quota{}
	}

	for key, record := range s.Jobs {
		out.Jobs[key] = &Job{Config: record.Config, Tasks: slices.Clone(record.Tasks)}
	}

	for key, update := range s.Updates {
		cloned := *update
		cloned.Updated = slices.Clone(update.Updated)
		out.Updates[key] = &cloned
	}

	return out
}

// normalize replaces nil maps left by decoding.
func (s *Snapshot) normalize() {
	if s.Jobs == nil {
		s.Jobs = map[string]*Job{}
	}

	if s.Quotas == nil {
		s.Quotas = map[string]job.Quota{}
	}

	if s.Updates == nil {
		s.Updates = map[string]*Update{}
	}
}
