package config

import (
	"github.com/matchforge/configurator/pkg/errors"
	"github.com/matchforge/configurator/pkg/json"
)

// engineSettings is the document shape every engine initialization accepts,
// carried over from the engine's legacy ini layout.
type engineSettings struct {
	Pipeline enginePipeline `json:"PIPELINE"`
	SQL      engineSQL      `json:"SQL"`
}

type enginePipeline struct {
	ConfigPath          string `json:"CONFIGPATH"`
	ResourcePath        string `json:"RESOURCEPATH"`
	SupportPath         string `json:"SUPPORTPATH"`
	LicenseStringBase64 string `json:"LICENSESTRINGBASE64,omitempty"`
}

type engineSQL struct {
	Connection string `json:"CONNECTION"`
}

// EngineSettingsJSON returns the settings document passed to engine
// initialization. When EngineConfigurationJSON is set it is returned
// verbatim; otherwise the document is built from the resolved paths and the
// dialect-specific database URL, plus the license string when one is
// configured.
func (s *Settings) EngineSettingsJSON() (string, error) {
	if s.EngineConfigurationJSON != "" {
		return s.EngineConfigurationJSON, nil
	}

	doc := engineSettings{
		Pipeline: enginePipeline{
			ConfigPath:          s.ConfigPath,
			ResourcePath:        s.ResourcePath,
			SupportPath:         s.SupportPath,
			LicenseStringBase64: s.LicenseBase64Encoded,
		},
		SQL: engineSQL{
			Connection: s.DatabaseURLSpecific,
		},
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "building engine settings document")
	}
	return string(raw), nil
}
