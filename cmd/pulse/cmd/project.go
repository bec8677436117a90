package cmd

import (
	"errors"
	"os"

	"github.com/go-drift/pulse/cmd/pulse/internal/config"
)

// loadConfig resolves the configuration of the project containing env.Dir,
// or of env.Dir itself when it is not inside a Go module.
func loadConfig(env *Env) (*config.Resolved, error) {
	dir := env.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	root, err := config.FindProjectRootFrom(dir)
	if errors.Is(err, config.ErrNoModule) {
		return config.ResolveStandalone(dir)
	}
	if err != nil {
		return nil, err
	}
	return config.Resolve(root)
}
