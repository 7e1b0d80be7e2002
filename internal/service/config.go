package service

import (
	"maps"
	"os"
	"strings"
	"time"

	"github.com/byase/byase-gui/internal/model"
	"github.com/spf13/viper"
)

// Overrides are the settings taken from command line flags and BYASE_*
// environment variables. They take precedence over the config file.
type Overrides struct {
	Engine struct {
		Path        string            `mapstructure:"path"`
		Env         map[string]string `mapstructure:"env"`
		GracePeriod time.Duration     `mapstructure:"grace_period"`
		KillTimeout time.Duration     `mapstructure:"kill_timeout"`
	} `mapstructure:"engine"`
	Verbose bool   `mapstructure:"verbose"`
	Output  string `mapstructure:"log_output"`
}

func ParseOverrides(v *viper.Viper) (Overrides, error) {
	var o Overrides
	err := v.Unmarshal(&o)
	return o, err
}

// Apply returns a copy of cfg with the overrides set. Engine environment
// values starting with $ are expanded from the current environment.
func (o Overrides) Apply(cfg model.Config) model.Config {
	if o.Engine.Path != "" {
		cfg.Engine.Path = o.Engine.Path
	}
	if o.Engine.GracePeriod > 0 {
		cfg.Engine.GracePeriod = o.Engine.GracePeriod.String()
	}
	if o.Engine.KillTimeout > 0 {
		cfg.Engine.KillTimeout = o.Engine.KillTimeout.String()
	}

	env := make(map[string]string, len(cfg.Engine.Env)+len(o.Engine.Env))
	maps.Copy(env, cfg.Engine.Env)
	for k, v := range o.Engine.Env {
		// viper lower cases every key
		env[strings.ToUpper(k)] = v
	}
	for k, v := range env {
		if strings.HasPrefix(v, "$") {
			env[k] = os.ExpandEnv(v)
		}
	}
	cfg.Engine.Env = env

	if o.Verbose || o.Output != "" {
		var l model.Log
		if cfg.Log != nil {
			l = *cfg.Log
		}
		if o.Verbose {
			verbose := true
			l.Verbose = &verbose
		}
		if o.Output != "" {
			output := o.Output
			l.Output = &output
		}
		cfg.Log = &l
	}
	return cfg
}
