package config

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/kozaktomas/facewatch/internal/facematch"
	yamlv3 "gopkg.in/yaml.v3"
)

//go:embed profiles.yaml
var profilesYAML []byte

// profileEnvPrefix selects per-profile overrides such as
// FACEWATCH_PROFILE_INSIGHTFACE_THRESHOLD=0.45.
const profileEnvPrefix = "FACEWATCH_PROFILE_"

// Profile describes how descriptors from one source are compared.
type Profile struct {
	Metric    string  `koanf:"metric" yaml:"metric"`
	Threshold float64 `koanf:"threshold" yaml:"threshold"`
	Policy    string  `koanf:"policy" yaml:"policy"`
	Dimension int     `koanf:"dimension" yaml:"dimension"` // 0 accepts any length
}

type profilesFile struct {
	Active   string             `koanf:"active"`
	Profiles map[string]Profile `koanf:"profiles"`
}

func (p Profile) validate() error {
	if p.Threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %v", p.Threshold)
	}
	if _, err := facematch.ParseMetric(p.Metric); err != nil {
		return err
	}
	if _, err := facematch.ParsePolicy(p.Policy); err != nil {
		return err
	}
	if p.Dimension < 0 {
		return fmt.Errorf("dimension must not be negative, got %d", p.Dimension)
	}
	return nil
}

// Matcher builds the facematch.Matcher this profile describes.
func (p Profile) Matcher() (facematch.Matcher, error) {
	metric, err := facematch.ParseMetric(p.Metric)
	if err != nil {
		return facematch.Matcher{}, err
	}
	policy, err := facematch.ParsePolicy(p.Policy)
	if err != nil {
		return facematch.Matcher{}, err
	}
	return facematch.NewMatcher(metric, p.Threshold, policy)
}

// Active returns the selected profile.
func (c *MatchingConfig) Active() (Profile, error) {
	p, ok := c.Profiles[c.Profile]
	if !ok {
		return Profile{}, fmt.Errorf("unknown descriptor profile %q", c.Profile)
	}
	return p, nil
}

// embeddedProfiles feeds the built-in profiles.yaml to koanf as the lowest layer.
type embeddedProfiles struct{}

func (embeddedProfiles) ReadBytes() ([]byte, error) {
	return profilesYAML, nil
}

func (embeddedProfiles) Read() (map[string]any, error) {
	var m map[string]any
	if err := yamlv3.Unmarshal(profilesYAML, &m); err != nil {
		return nil, fmt.Errorf("parse embedded profiles.yaml: %w", err)
	}
	return m, nil
}

// profileEnvKey maps FACEWATCH_PROFILE_<NAME>_<FIELD> to profiles.<name>.<field>.
// Anything else under the prefix is ignored.
func profileEnvKey(s string) string {
	rest := strings.ToLower(strings.TrimPrefix(s, profileEnvPrefix))
	name, field, ok := strings.Cut(rest, "_")
	if !ok || name == "" {
		return ""
	}
	switch field {
	case "metric", "threshold", "policy", "dimension":
		return "profiles." + name + "." + field
	default:
		return ""
	}
}

// loadProfiles layers the embedded defaults, an optional operator YAML file and
// environment overrides, low to high precedence.
func loadProfiles(path string) (map[string]Profile, string, error) {
	k := koanf.New(".")

	if err := k.Load(embeddedProfiles{}, nil); err != nil {
		return nil, "", err
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("load profiles file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(profileEnvPrefix, ".", profileEnvKey), nil); err != nil {
		return nil, "", fmt.Errorf("load profile overrides: %w", err)
	}

	var pf profilesFile
	if err := k.UnmarshalWithConf("", &pf, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, "", fmt.Errorf("decode profiles: %w", err)
	}
	if len(pf.Profiles) == 0 {
		return nil, "", errors.New("no descriptor profiles configured")
	}
	return pf.Profiles, pf.Active, nil
}
