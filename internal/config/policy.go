package config

import (
	"github.com/FabG/proxy-uc-genie/internal/policy"
)

// PolicySnapshot builds the access-control snapshot described by this config.
func (c *Config) PolicySnapshot() (*policy.Snapshot, error) {
	useCases := make([]policy.UseCase, 0, len(c.AccessControl.AllowedUseCases))
	for _, id := range c.AccessControl.AllowedUseCases {
		useCases = append(useCases, policy.UseCase{
			ID:          id,
			Description: c.AccessControl.UseCaseDescriptions[id],
		})
	}
	return policy.NewSnapshot(
		useCases,
		c.Security.CaseSensitiveMatching,
		c.Security.RequireUseCaseHeader,
	)
}

// PolicySource returns a loader that re-reads the config file on every
// reload, so /config/reload picks up edits without a restart.
func PolicySource(path string) policy.Loader {
	return policy.LoaderFunc(func() (*policy.Snapshot, error) {
		cfg, err := Load(path)
		if err != nil {
			return nil, err
		}
		return cfg.PolicySnapshot()
	})
}
