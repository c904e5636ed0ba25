package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/spigell/cv-screener/internal/scoring"
)

const ext = ".json"

// ErrNotFound is returned by Load for a candidate without a stored result.
var ErrNotFound = errors.New("result not found")

var validate = validator.New()

// Envelope is one stored scoring result.
type Envelope struct {
	RunID       string                  `json:"run_id" validate:"required"`
	ScoredAt    time.Time               `json:"scored_at"`
	Requirement string                  `json:"requirement"`
	Breakdown   *scoring.ScoreBreakdown `json:"breakdown" validate:"required"`
}

// Store keeps one JSON file per candidate under a directory. Saving a
// candidate again overwrites the previous result.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("results directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating results directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, url.PathEscape(id)+ext)
}

// Save writes the envelope through a temporary file so readers never see a
// partial result.
func (s *Store) Save(env *Envelope) error {
	if env == nil {
		return errors.New("nil envelope")
	}
	if err := validate.Struct(env); err != nil {
		return fmt.Errorf("invalid envelope: %w", err)
	}
	if env.ScoredAt.IsZero() {
		env.ScoredAt = time.Now().UTC()
	}
	id := strings.TrimSpace(env.Breakdown.CandidateID)
	if id == "" {
		return errors.New("invalid envelope: candidate id is empty")
	}

	tmp, err := os.CreateTemp(s.dir, ".result_*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(env); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding result for %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), s.path(id))
}

func (s *Store) Load(id string) (*Envelope, error) {
	env, err := readEnvelope(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return env, err
}

// List returns every stored envelope ordered by candidate id.
func (s *Store) List() ([]*Envelope, error) {
	files, err := filepath.Glob(filepath.Join(s.dir, "*"+ext))
	if err != nil {
		return nil, err
	}

	envs := make([]*Envelope, 0, len(files))
	for _, file := range files {
		env, err := readEnvelope(file)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}

	sort.Slice(envs, func(i, j int) bool {
		return envs[i].Breakdown.CandidateID < envs[j].Breakdown.CandidateID
	})
	return envs, nil
}

// Breakdowns returns the scorecards of every stored envelope.
func (s *Store) Breakdowns() ([]*scoring.ScoreBreakdown, error) {
	envs, err := s.List()
	if err != nil {
		return nil, err
	}
	out := make([]*scoring.ScoreBreakdown, 0, len(envs))
	for _, env := range envs {
		out = append(out, env.Breakdown)
	}
	return out, nil
}

// ScoredIDs lists the candidates with a stored result.
func (s *Store) ScoredIDs() ([]string, error) {
	envs, err := s.List()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(envs))
	for _, env := range envs {
		ids = append(ids, env.Breakdown.CandidateID)
	}
	return ids, nil
}

func readEnvelope(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("parse result file %q: %w", path, err)
	}
	if env.Breakdown == nil {
		return nil, fmt.Errorf("result file %q has no breakdown", path)
	}
	return &env, nil
}
