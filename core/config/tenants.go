package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tenant is one managed page. ID is the page id, which is also the identity
// used for self-origin detection.
type Tenant struct {
	RepliesToReplies *bool  `yaml:"replies_to_replies"`
	SeedEnabled      *bool  `yaml:"seed_enabled"`
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	AccessToken      string `yaml:"access_token"`
	Persona          string `yaml:"persona"`
	Language         string `yaml:"language"`
	SeedHint         string `yaml:"seed_hint"`
}

type tenantsFile struct {
	Tenants []Tenant `yaml:"tenants"`
}

// AllowsReplies reports whether replies to replies are acted on, falling back
// to the global limit when the tenant does not override it.
func (t Tenant) AllowsReplies(l Limits) bool {
	if t.RepliesToReplies != nil {
		return *t.RepliesToReplies
	}
	return l.RepliesToReplies
}

func (t Tenant) AllowsSeeding(l Limits) bool {
	if t.SeedEnabled != nil {
		return *t.SeedEnabled
	}
	return l.SeedEnabled
}

// LoadTenantsFile parses a YAML tenants file. ${VAR} references are expanded
// from the environment so tokens can stay out of the file.
func LoadTenantsFile(path string) ([]Tenant, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tenants file: %w", err)
	}
	return ParseTenants([]byte(os.ExpandEnv(string(raw))))
}

func ParseTenants(data []byte) ([]Tenant, error) {
	var file tenantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing tenants file: %w", err)
	}

	seen := make(map[string]bool, len(file.Tenants))
	for i := range file.Tenants {
		t := &file.Tenants[i]
		if t.ID == "" || t.AccessToken == "" {
			return nil, fmt.Errorf("tenant #%d: id and access_token are required", i+1)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("tenant %s listed twice", t.ID)
		}
		seen[t.ID] = true
		applyTenantDefaults(t)
	}
	return file.Tenants, nil
}

func loadTenants(path string) ([]Tenant, error) {
	if path != "" {
		return LoadTenantsFile(path)
	}

	pageID := getEnv("FB_PAGE_ID", "")
	token := getEnv("FB_PAGE_TOKEN", "")
	if pageID == "" || token == "" {
		return nil, nil
	}

	t := Tenant{
		ID:          pageID,
		Name:        getEnv("FB_PAGE_NAME", ""),
		AccessToken: token,
		Persona:     getEnv("PAGE_PERSONA", ""),
		Language:    getEnv("REPLY_LANGUAGE", ""),
	}
	applyTenantDefaults(&t)
	return []Tenant{t}, nil
}

func applyTenantDefaults(t *Tenant) {
	if t.Name == "" {
		t.Name = t.ID
	}
	if t.Language == "" {
		t.Language = "en"
	}
	if t.Persona == "" {
		t.Persona = fmt.Sprintf("a friendly admin of the page %s", t.Name)
	}
}
