package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/valter-silva-au/scrapewatch/pkg/models"
	"gopkg.in/yaml.v3"
)

// DomainStore reads and updates per-domain error and step profiles.
type DomainStore interface {
	Profiles() ([]models.DomainProfile, error)
	RecordError(domain string, e models.DomainError) error
	RecordStep(domain, step string, success bool, d time.Duration, at time.Time) error
	Close() error
}

// DomainProfileFile is the on-disk layout of a FileDomainStore.
type DomainProfileFile struct {
	Version string                          `yaml:"version" json:"version"`
	Domains map[string]models.DomainProfile `yaml:"domains" json:"domains"`
}

// FileDomainStore keeps domain profiles in a single YAML or JSON file,
// selected by extension (.json is JSON, anything else YAML).
type FileDomainStore struct {
	path string
	mu   sync.Mutex
}

// NewFileDomainStore creates a store for path. The file is created on the
// first write.
func NewFileDomainStore(path string) *FileDomainStore {
	return &FileDomainStore{path: path}
}

func (s *FileDomainStore) isJSON() bool {
	return strings.EqualFold(filepath.Ext(s.path), ".json")
}

func (s *FileDomainStore) load() (DomainProfileFile, error) {
	f := DomainProfileFile{Version: "1.0", Domains: map[string]models.DomainProfile{}}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, fmt.Errorf("reading domain profiles: %w", err)
	}
	if s.isJSON() {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return f, fmt.Errorf("parsing domain profiles: %w", err)
	}
	if f.Domains == nil {
		f.Domains = map[string]models.DomainProfile{}
	}
	return f, nil
}

func (s *FileDomainStore) save(f DomainProfileFile) error {
	var data []byte
	var err error
	if s.isJSON() {
		data, err = json.MarshalIndent(f, "", "  ")
	} else {
		data, err = yaml.Marshal(f)
	}
	if err != nil {
		return fmt.Errorf("marshalling domain profiles: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating domain profile directory: %w", err)
	}
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("writing domain profiles: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming domain profiles: %w", err)
	}
	return nil
}

// Profiles returns every profile sorted by domain.
func (s *FileDomainStore) Profiles() ([]models.DomainProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.DomainProfile, 0, len(f.Domains))
	for domain, p := range f.Domains {
		if p.Domain == "" {
			p.Domain = domain
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

// RecordError appends a historical error to the domain's profile.
func (s *FileDomainStore) RecordError(domain string, e models.DomainError) error {
	return s.modify(domain, func(p *models.DomainProfile) {
		p.Errors = append(p.Errors, e)
	})
}

// RecordStep folds one step outcome into the domain's step stats.
func (s *FileDomainStore) RecordStep(domain, step string, success bool, d time.Duration, at time.Time) error {
	return s.modify(domain, func(p *models.DomainProfile) {
		p.Steps[step] = ApplyStepOutcome(p.Steps[step], success, d, at)
	})
}

func (s *FileDomainStore) modify(domain string, fn func(p *models.DomainProfile)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.load()
	if err != nil {
		return err
	}
	p := f.Domains[domain]
	p.Domain = domain
	if p.Steps == nil {
		p.Steps = map[string]models.StepStats{}
	}
	fn(&p)
	f.Domains[domain] = p
	return s.save(f)
}

// Close implements DomainStore.
func (s *FileDomainStore) Close() error { return nil }

// ApplyStepOutcome returns st updated with one more run. The average
// duration covers successes and failures.
func ApplyStepOutcome(st models.StepStats, success bool, d time.Duration, at time.Time) models.StepStats {
	runs := st.Successes + st.Failures
	st.AvgDurationMS = (st.AvgDurationMS*float64(runs) + float64(d.Milliseconds())) / float64(runs+1)
	if success {
		st.Successes++
		t := at.UTC()
		st.LastSuccess = &t
	} else {
		st.Failures++
	}
	return st
}
