package reconcile

import "strings"

const (
	defaultStorePathConstant = "charm_revisions.yaml"
)

// Configuration captures configuration values for the reconcile command.
type Configuration struct {
	StorePath string   `mapstructure:"store_path"`
	Charms    []string `mapstructure:"charms"`
}

// DefaultConfiguration provides baseline configuration values for reconciliation.
func DefaultConfiguration() Configuration {
	return Configuration{
		StorePath: defaultStorePathConstant,
	}
}

// DefaultConfigurationValues exposes reconcile defaults keyed for the
// configuration loader under the supplied configuration prefix.
func DefaultConfigurationValues(configurationPrefix string) map[string]any {
	return map[string]any{
		configurationPrefix + ".store_path": defaultStorePathConstant,
	}
}

// Sanitize trims configured values and removes empty charm entries.
func (configuration Configuration) Sanitize() Configuration {
	sanitized := configuration
	sanitized.StorePath = strings.TrimSpace(configuration.StorePath)
	if len(sanitized.StorePath) == 0 {
		sanitized.StorePath = defaultStorePathConstant
	}
	sanitized.Charms = sanitizeCharmNames(configuration.Charms)
	return sanitized
}

func sanitizeCharmNames(candidateNames []string) []string {
	sanitizedNames := make([]string, 0, len(candidateNames))
	for _, candidateName := range candidateNames {
		trimmedName := strings.TrimSpace(candidateName)
		if len(trimmedName) == 0 {
			continue
		}
		sanitizedNames = append(sanitizedNames, trimmedName)
	}
	if len(sanitizedNames) == 0 {
		return nil
	}
	return sanitizedNames
}
