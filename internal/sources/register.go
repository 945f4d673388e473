// Package sources holds the built-in scanners: system temp, system logs,
// and the Chrome and Firefox profile sweeps.
package sources

import (
	"github.com/ChrisB0-2/purge/internal/core"
	"github.com/ChrisB0-2/purge/internal/scanner"
)

// DefaultNames lists the built-in scanners in registration order.
var DefaultNames = []string{SystemTempName, SystemLogsName, ChromeName, FirefoxName}

// RegisterDefaults adds every built-in scanner to reg.
func RegisterDefaults(reg *scanner.Registry) error {
	return RegisterWithEnv(reg, nil)
}

// RegisterWithEnv is RegisterDefaults with the directory lookup replaced.
// A nil envFor uses DetectEnv.
func RegisterWithEnv(reg *scanner.Registry, envFor func(core.Platform) Env) error {
	if envFor == nil {
		envFor = DetectEnv
	}
	factories := map[string]scanner.Factory{
		SystemTempName: func(d scanner.Deps) core.Source {
			return NewSystemTemp(d.Walker, envFor(d.Platform))
		},
		SystemLogsName: func(d scanner.Deps) core.Source {
			return NewSystemLogs(d.Walker, envFor(d.Platform))
		},
		ChromeName: func(d scanner.Deps) core.Source {
			return NewChrome(d.Walker, envFor(d.Platform))
		},
		FirefoxName: func(d scanner.Deps) core.Source {
			return NewFirefox(d.Walker, envFor(d.Platform))
		},
	}
	for _, name := range DefaultNames {
		if err := reg.Register(name, factories[name]); err != nil {
			return err
		}
	}
	return nil
}
