package keyring

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/glottahq/glotta/pkg/types"
)

// credentialsFile is the on-disk shape of the credentials file.
type credentialsFile struct {
	Keys []types.Credential `yaml:"keys"`
}

// LoadCredentials reads the credentials file at path, validates every entry,
// and resolves zero limits against the configured defaults. An empty key
// list is returned as-is: startup treats it as a warning, not an error, and
// the health endpoint reports the service unhealthy until keys exist.
func LoadCredentials(path string, defaults types.CredentialLimits) ([]types.Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: read %s: %w", path, err)
	}
	return ParseCredentials(data, defaults)
}

// ParseCredentials validates raw credentials file contents. Split from
// LoadCredentials so `glotta credentials validate` can check arbitrary
// bytes.
func ParseCredentials(data []byte, defaults types.CredentialLimits) ([]types.Credential, error) {
	var f credentialsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("credentials: parse: %w", err)
	}

	validate := validator.New()
	seen := make(map[string]struct{}, len(f.Keys))

	for i := range f.Keys {
		cred := &f.Keys[i]
		if err := validate.Struct(cred); err != nil {
			return nil, fmt.Errorf("credentials: key %d (%s): %w", i, cred.ID, err)
		}
		if _, dup := seen[cred.ID]; dup {
			return nil, fmt.Errorf("credentials: duplicate id %q", cred.ID)
		}
		seen[cred.ID] = struct{}{}

		// Zero limits inherit the configured defaults.
		if cred.Limits.RequestsPerMinute == 0 {
			cred.Limits.RequestsPerMinute = defaults.RequestsPerMinute
		}
		if cred.Limits.RequestsPerDay == 0 {
			cred.Limits.RequestsPerDay = defaults.RequestsPerDay
		}
		if cred.Limits.TokensPerMinute == 0 {
			cred.Limits.TokensPerMinute = defaults.TokensPerMinute
		}
	}

	return f.Keys, nil
}
