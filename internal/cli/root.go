// Package cli implements coachctl, the operator command line for the coach services.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"example.com/coach/internal/app"
	"example.com/coach/internal/config"
	"example.com/coach/internal/domain"
)

type globalOptions struct {
	backend  string
	workouts string
}

// NewRootCommand builds the coachctl command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "coachctl",
		Short: "Operate the workout attribution and planning services",
		Long: `coachctl runs one-off operations against the configured store:
  - generate a plan for a user
  - sweep unattributed sessions
  - inspect or validate tuning
  - mint API tokens for local testing`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.backend, "backend", "", "store backend override (memory|postgres)")
	root.PersistentFlags().StringVar(&opts.workouts, "workouts", "", "YAML file of workouts to seed into the memory backend")

	root.AddCommand(
		newPlanCommand(opts),
		newRematchCommand(opts),
		newTuningCommand(),
		newTokenCommand(),
	)
	return root
}

// Execute runs coachctl with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func (o *globalOptions) config() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	if o.backend != "" {
		cfg.StoreBackend = o.backend
	}
	return cfg, nil
}

// open wires the services and applies the workout seed file.
func (o *globalOptions) open(ctx context.Context) (*app.App, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	coach, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if o.workouts == "" {
		return coach, nil
	}

	seeder, ok := coach.Store.(interface {
		AddWorkouts(records ...domain.WorkoutRecord)
	})
	if !ok {
		coach.Close()
		return nil, fmt.Errorf("--workouts requires the %s backend", config.StoreMemory)
	}
	records, err := loadWorkouts(o.workouts)
	if err != nil {
		coach.Close()
		return nil, err
	}
	seeder.AddWorkouts(records...)
	return coach, nil
}

type workoutSeed struct {
	Workouts []struct {
		ID           string    `yaml:"id"`
		UserID       string    `yaml:"user_id"`
		Start        time.Time `yaml:"start"`
		End          time.Time `yaml:"end"`
		ActivityType string    `yaml:"activity_type"`
		Zones        []float64 `yaml:"zones"`
		Strain       float64   `yaml:"strain"`
	} `yaml:"workouts"`
}

func loadWorkouts(path string) ([]domain.WorkoutRecord, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workouts: %w", err)
	}
	var seed workoutSeed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse workouts %s: %w", path, err)
	}

	records := make([]domain.WorkoutRecord, 0, len(seed.Workouts))
	for i, w := range seed.Workouts {
		if w.ID == "" || w.UserID == "" {
			return nil, fmt.Errorf("workout %d: id and user_id are required", i)
		}
		if len(w.Zones) > len(domain.ZoneMinutes{}) {
			return nil, fmt.Errorf("workout %s: at most %d zones", w.ID, len(domain.ZoneMinutes{}))
		}
		rec := domain.WorkoutRecord{
			ID:           w.ID,
			UserID:       w.UserID,
			Start:        w.Start.UTC(),
			End:          w.End.UTC(),
			ActivityType: w.ActivityType,
			Strain:       w.Strain,
			Source:       domain.SourceWearable,
		}
		copy(rec.Zones[:], w.Zones)
		records = append(records, rec)
	}
	return records, nil
}
