package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

var knownActions = map[string]bool{"acknowledge": true, "respond": true, "seed": true}

// Limits are the engine tunables. Every field has a documented default so an
// empty environment yields a working configuration.
type Limits struct {
	ReactionMinGap time.Duration `env:"REACTION_MIN_GAP" envDefault:"20s"`
	ReactionMaxGap time.Duration `env:"REACTION_MAX_GAP" envDefault:"90s"`
	ReplyMinGap    time.Duration `env:"REPLY_MIN_GAP" envDefault:"45s"`
	ReplyMaxGap    time.Duration `env:"REPLY_MAX_GAP" envDefault:"180s"`

	AcknowledgeDelayMin time.Duration `env:"ACK_DELAY_MIN" envDefault:"5s"`
	AcknowledgeDelayMax time.Duration `env:"ACK_DELAY_MAX" envDefault:"60s"`
	RespondDelayMin     time.Duration `env:"RESPOND_DELAY_MIN" envDefault:"30s"`
	RespondDelayMax     time.Duration `env:"RESPOND_DELAY_MAX" envDefault:"240s"`
	SeedDelayMin        time.Duration `env:"SEED_DELAY_MIN" envDefault:"60s"`
	SeedDelayMax        time.Duration `env:"SEED_DELAY_MAX" envDefault:"300s"`

	HourCap       int `env:"HOUR_CAP" envDefault:"30"`
	DayCap        int `env:"DAY_CAP" envDefault:"200"`
	PerThreadCap  int `env:"PER_THREAD_CAP" envDefault:"3"`
	QueueCapacity int `env:"QUEUE_CAPACITY" envDefault:"20"`
	DedupCapacity int `env:"DEDUP_CAPACITY" envDefault:"5000"`

	StaleAfter    time.Duration `env:"STALE_AFTER" envDefault:"5m"`
	ThreadIdleTTL time.Duration `env:"THREAD_IDLE_TTL" envDefault:"48h"`

	TopLevelProbability float64 `env:"TOP_LEVEL_PROBABILITY" envDefault:"1.0"`
	ReplyProbability    float64 `env:"REPLY_PROBABILITY" envDefault:"0.5"`
	PostProbability     float64 `env:"POST_PROBABILITY" envDefault:"1.0"`

	TopLevelActions []string `env:"TOP_LEVEL_ACTIONS" envSeparator:"," envDefault:"acknowledge,respond"`
	ReplyActions    []string `env:"REPLY_ACTIONS" envSeparator:"," envDefault:"respond"`
	PostActions     []string `env:"POST_ACTIONS" envSeparator:"," envDefault:"seed"`

	RepliesToReplies bool `env:"REPLIES_TO_REPLIES" envDefault:"true"`
	SeedEnabled      bool `env:"SEED_ENABLED" envDefault:"false"`
}

// LoadLimits parses Limits from the environment and validates them.
func LoadLimits() (Limits, error) {
	var l Limits
	if err := env.Parse(&l); err != nil {
		return Limits{}, fmt.Errorf("parsing limits: %w", err)
	}
	if err := l.Validate(); err != nil {
		return Limits{}, err
	}
	return l, nil
}

// DefaultLimits returns the documented defaults without reading the environment.
func DefaultLimits() Limits {
	var l Limits
	_ = env.ParseWithOptions(&l, env.Options{Environment: map[string]string{}})
	return l
}

func (l Limits) Validate() error {
	var errs []error

	ranges := []struct {
		name     string
		min, max time.Duration
	}{
		{"REACTION gap", l.ReactionMinGap, l.ReactionMaxGap},
		{"REPLY gap", l.ReplyMinGap, l.ReplyMaxGap},
		{"ACK delay", l.AcknowledgeDelayMin, l.AcknowledgeDelayMax},
		{"RESPOND delay", l.RespondDelayMin, l.RespondDelayMax},
		{"SEED delay", l.SeedDelayMin, l.SeedDelayMax},
	}
	for _, r := range ranges {
		if r.min < 0 || r.max < r.min {
			errs = append(errs, fmt.Errorf("%s: need 0 <= min <= max, got %s..%s", r.name, r.min, r.max))
		}
	}

	for name, p := range map[string]float64{
		"TOP_LEVEL_PROBABILITY": l.TopLevelProbability,
		"REPLY_PROBABILITY":     l.ReplyProbability,
		"POST_PROBABILITY":      l.PostProbability,
	} {
		if p < 0 || p > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0, 1], got %v", name, p))
		}
	}

	if l.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("QUEUE_CAPACITY must be positive"))
	}
	if l.DedupCapacity <= 0 {
		errs = append(errs, fmt.Errorf("DEDUP_CAPACITY must be positive"))
	}
	if l.StaleAfter <= 0 {
		errs = append(errs, fmt.Errorf("STALE_AFTER must be positive"))
	}

	for _, actions := range [][]string{l.TopLevelActions, l.ReplyActions, l.PostActions} {
		if err := checkActions(actions); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func checkActions(names []string) error {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		n := strings.TrimSpace(strings.ToLower(name))
		if n == "" {
			continue
		}
		if !knownActions[n] {
			return fmt.Errorf("unknown task type %q", name)
		}
		if seen[n] {
			return fmt.Errorf("duplicate task type %q", name)
		}
		seen[n] = true
	}
	return nil
}

// Actions returns the configured action names for events of the given kind
// (top_level, reply or post).
func (l Limits) Actions(kind string) []string {
	switch kind {
	case "top_level":
		return l.TopLevelActions
	case "reply":
		return l.ReplyActions
	case "post":
		return l.PostActions
	}
	return nil
}

// Probability is the sampling rate for events of the given kind.
func (l Limits) Probability(kind string) float64 {
	switch kind {
	case "top_level":
		return l.TopLevelProbability
	case "reply":
		return l.ReplyProbability
	case "post":
		return l.PostProbability
	}
	return 0
}

// Delay is the [min, max] window a task of the given type is scheduled into.
func (l Limits) Delay(taskType string) (time.Duration, time.Duration) {
	switch taskType {
	case "acknowledge":
		return l.AcknowledgeDelayMin, l.AcknowledgeDelayMax
	case "respond":
		return l.RespondDelayMin, l.RespondDelayMax
	case "seed":
		return l.SeedDelayMin, l.SeedDelayMax
	}
	return 0, 0
}

// Gap is the [min, max] pacing window applied after a task of the given gate
// class. Anything other than "reaction" paces as a reply.
func (l Limits) Gap(class string) (time.Duration, time.Duration) {
	if class == "reaction" {
		return l.ReactionMinGap, l.ReactionMaxGap
	}
	return l.ReplyMinGap, l.ReplyMaxGap
}
