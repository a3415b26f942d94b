// Package config loads the agent runtime's environment-driven tuning knobs
// (spec.md §6) via spf13/viper, with an optional fsnotify-backed watcher for
// reload_config support. Grounded on the teacher's internal/config package
// (file_config.go's env/YAML layering, runtime_watcher.go's debounced
// fsnotify reload loop).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RuntimeConfig holds the agent runtime's tunable knobs, sourced from
// environment variables (spec.md §6).
type RuntimeConfig struct {
	AgentRestTime          time.Duration
	CommandRoot            string
	StateRoot              string
	HeartbeatInterval      time.Duration
	CommandPollInterval    time.Duration
	WebhookAddr            string
	WebhookPath            string
	WebhookBearerToken     string
	GracefulShutdownTimeout time.Duration
	ProcessTimeout         time.Duration
	CycleDBPath            string
	CycleMaxKeep           int
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("agent_rest_time", "2s")
	v.SetDefault("command_root", "./data/commands")
	v.SetDefault("state_root", "./data/state")
	v.SetDefault("heartbeat_interval_s", 10)
	v.SetDefault("command_poll_interval_s", 1)
	v.SetDefault("webhook_enabled", false)
	v.SetDefault("webhook_host", "0.0.0.0")
	v.SetDefault("webhook_port", 8089)
	v.SetDefault("webhook_path", "/webhook")
	v.SetDefault("webhook_auth_token", "")
	v.SetDefault("graceful_shutdown_timeout_s", 30)
	v.SetDefault("process_timeout_s", 300)
	v.SetDefault("cycle_db_path", "./data/cycles.jsonl")
	v.SetDefault("cycle_max_keep", 10000)
	return v
}

// Load reads RuntimeConfig from environment variables (spec.md §6), with
// the same defaults the worker and controller entrypoints rely on.
func Load() (RuntimeConfig, error) {
	v := newViper()
	return fromViper(v)
}

func fromViper(v *viper.Viper) (RuntimeConfig, error) {
	restTime, err := time.ParseDuration(v.GetString("agent_rest_time"))
	if err != nil {
		restTime = 2 * time.Second
	}

	// spec.md §6 names WEBHOOK_ENABLED/HOST/PORT/PATH/AUTH_TOKEN as five
	// separate knobs; collapse them here into one resolved address so the
	// rest of the module only has to check "is WebhookAddr non-empty".
	var webhookAddr string
	if v.GetBool("webhook_enabled") {
		webhookAddr = fmt.Sprintf("%s:%d", v.GetString("webhook_host"), v.GetInt("webhook_port"))
	}

	return RuntimeConfig{
		AgentRestTime:           restTime,
		CommandRoot:             v.GetString("command_root"),
		StateRoot:               v.GetString("state_root"),
		HeartbeatInterval:       time.Duration(v.GetInt("heartbeat_interval_s")) * time.Second,
		CommandPollInterval:     time.Duration(v.GetInt("command_poll_interval_s")) * time.Second,
		WebhookAddr:             webhookAddr,
		WebhookPath:             v.GetString("webhook_path"),
		WebhookBearerToken:      v.GetString("webhook_auth_token"),
		GracefulShutdownTimeout: time.Duration(v.GetInt("graceful_shutdown_timeout_s")) * time.Second,
		ProcessTimeout:          time.Duration(v.GetInt("process_timeout_s")) * time.Second,
		CycleDBPath:             v.GetString("cycle_db_path"),
		CycleMaxKeep:            v.GetInt("cycle_max_keep"),
	}, nil
}
