// Package config loads the tunable options from spec.md §6: a YAML file on
// disk, overridable by environment variables, and optionally hot-reloaded
// while a gateway is running. It follows the shape of the teacher's
// pkg/client.Config/Env split: a plain struct with yaml tags for the file,
// a parallel struct with env tags for the environment-variable overrides.
package config

import (
	"context"
	"os"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/datawire/dlib/dlog"
)

// Options holds every tunable named in spec.md §6, with the defaults from
// that table.
type Options struct {
	MSS                 int `yaml:"mss"                 env:"MOJO_MSS"`
	InitialRTOStunMs    int `yaml:"initialRtoStunMs"     env:"MOJO_INITIAL_RTO_STUN_MS"`
	InitialRTOPTcpMs    int `yaml:"initialRtoPtcpMs"     env:"MOJO_INITIAL_RTO_PTCP_MS"`
	ValidationTimeoutS  int `yaml:"validationTimeoutS"   env:"MOJO_VALIDATION_TIMEOUT_S"`
	AttemptBudget       int `yaml:"attemptBudget"        env:"MOJO_ATTEMPT_BUDGET"`
	KeepaliveIdleS      int `yaml:"keepaliveIdleS"       env:"MOJO_KEEPALIVE_IDLE_S"`
	KeepaliveDeadS      int `yaml:"keepaliveDeadS"       env:"MOJO_KEEPALIVE_DEAD_S"`
	PersistCapS         int `yaml:"persistCapS"          env:"MOJO_PERSIST_CAP_S"`
	TurnPerCandidateS   int `yaml:"turnPerCandidateS"    env:"MOJO_TURN_PER_CANDIDATE_S"`
}

// Default returns the option set with every spec.md §6 default applied.
func Default() *Options {
	return &Options{
		MSS:                1400,
		InitialRTOStunMs:   500,
		InitialRTOPTcpMs:   1000,
		ValidationTimeoutS: 15,
		AttemptBudget:      2,
		KeepaliveIdleS:     30,
		KeepaliveDeadS:     75,
		PersistCapS:        60,
		TurnPerCandidateS:  10,
	}
}

func (o *Options) ValidationTimeout() time.Duration {
	return time.Duration(o.ValidationTimeoutS) * time.Second
}

func (o *Options) KeepaliveIdle() time.Duration {
	return time.Duration(o.KeepaliveIdleS) * time.Second
}

func (o *Options) KeepaliveDead() time.Duration {
	return time.Duration(o.KeepaliveDeadS) * time.Second
}

func (o *Options) PersistCap() time.Duration {
	return time.Duration(o.PersistCapS) * time.Second
}

func (o *Options) TurnPerCandidate() time.Duration {
	return time.Duration(o.TurnPerCandidateS) * time.Second
}

// Load reads path (if it exists) over the defaults, then applies any
// MOJO_* environment variable overrides.
func Load(ctx context.Context, path string) (*Options, error) {
	opts := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(buf, opts); err != nil {
				return nil, err
			}
		case os.IsNotExist(err):
			dlog.Debugf(ctx, "config: %s does not exist, using defaults", path)
		default:
			return nil, err
		}
	}
	if err := envconfig.Process(ctx, opts); err != nil {
		return nil, err
	}
	return opts, nil
}
