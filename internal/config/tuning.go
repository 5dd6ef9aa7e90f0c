package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"example.com/coach/internal/matching"
	"example.com/coach/internal/planner"
)

// Tuning groups every coefficient that can be swept without a code change.
type Tuning struct {
	Matching matching.Config `yaml:"matching"`
	Planner  planner.Weights `yaml:"planner"`
}

// DefaultTuning returns the production coefficients.
func DefaultTuning() Tuning {
	return Tuning{
		Matching: matching.DefaultConfig(),
		Planner:  planner.DefaultWeights(),
	}
}

// LoadTuning overlays the YAML file at path on the defaults. An empty path yields the defaults.
func LoadTuning(path string) (Tuning, error) {
	if path == "" {
		return DefaultTuning(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tuning{}, fmt.Errorf("read tuning file: %w", err)
	}
	return ParseTuning(raw)
}

// ParseTuning overlays YAML on the defaults. Unknown keys are rejected so that a typo
// cannot silently leave a coefficient at its default.
func ParseTuning(raw []byte) (Tuning, error) {
	t := DefaultTuning()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
		return Tuning{}, fmt.Errorf("parse tuning: %w", err)
	}
	if err := t.Validate(); err != nil {
		return Tuning{}, err
	}
	return t, nil
}

// Validate rejects coefficient combinations the engine cannot work with.
func (t Tuning) Validate() error {
	m, w := t.Matching, t.Planner
	var errs []error
	if m.MatchWindow <= 0 {
		errs = append(errs, errors.New("matching.match_window must be positive"))
	}
	if m.RetryWindow < m.MatchWindow {
		errs = append(errs, errors.New("matching.retry_window must not be narrower than match_window"))
	}
	if m.ConfidentDelta <= 0 || m.ConfidentDelta > m.MatchWindow {
		errs = append(errs, errors.New("matching.confident_delta must be within (0, match_window]"))
	}
	if m.StoreTimeout <= 0 {
		errs = append(errs, errors.New("matching.store_timeout must be positive"))
	}
	if m.QuestionThreshold <= 0 {
		errs = append(errs, errors.New("matching.question_threshold must be positive"))
	}
	if w.WindowDays <= 0 {
		errs = append(errs, errors.New("planner.window_days must be positive"))
	}
	if w.Z4CapMinutes <= 0 {
		errs = append(errs, errors.New("planner.z4_cap_minutes must be positive"))
	}
	if w.LowRecoveryPct > w.HighRecoveryPct {
		errs = append(errs, errors.New("planner.low_recovery_pct must not exceed high_recovery_pct"))
	}
	if w.HorizonDays <= 0 || w.HorizonDays > w.MaxHorizonDays {
		errs = append(errs, errors.New("planner.horizon_days must be within [1, max_horizon_days]"))
	}
	if w.LoadReference <= 0 {
		errs = append(errs, errors.New("planner.load_reference must be positive"))
	}
	return errors.Join(errs...)
}

// Marshal renders the tuning as YAML.
func (t Tuning) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(t); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
