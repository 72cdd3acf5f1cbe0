package manifest

import (
	"context"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// Compose Import
// =============================================================================

// ImportCompose maps the services of a compose file onto custom component
// entries. Each service joins the shared compute pool with one instance,
// contributes its environment to the shared function plan as app settings,
// and registers its named volumes as storage containers.
func ImportCompose(yamlContent string) ([]ComponentEntry, error) {
	if strings.TrimSpace(yamlContent) == "" {
		return nil, ErrEmptyInput
	}

	project, err := loadComposeProject(yamlContent)
	if err != nil {
		return nil, err
	}
	if len(project.Services) == 0 {
		return nil, NewError("services", "compose file declares no services", ErrNoServices)
	}

	names := make([]string, 0, len(project.Services))
	for name := range project.Services {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]ComponentEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, serviceEntry(name, project.Services[name]))
	}
	return entries, nil
}

// loadComposeProject loads a compose document using compose-go.
func loadComposeProject(yamlContent string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &dict); err != nil || dict == nil {
		return nil, NewError("", "invalid compose YAML", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(yamlContent),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName("weld-import", false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		// In-memory content: no paths to resolve, no external files to pull.
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		return nil, NewError("", err.Error(), ErrInvalidYAML)
	}
	return project, nil
}

// serviceEntry maps one compose service to a custom component entry.
func serviceEntry(name string, svc types.ServiceConfig) ComponentEntry {
	instance := map[string]any{"name": name}
	if svc.Image != "" {
		instance["image"] = svc.Image
	}

	reqs := []any{
		map[string]any{
			"type":   "compute",
			"key":    "services",
			"config": map[string]any{"instances": []any{instance}},
		},
	}

	if settings := environmentSettings(name, svc.Environment); len(settings) > 0 {
		reqs = append(reqs, map[string]any{
			"type":   "functions",
			"key":    "app",
			"config": map[string]any{"appSettings": settings},
		})
	}

	if containers := volumeContainers(svc.Volumes); len(containers) > 0 {
		reqs = append(reqs, map[string]any{
			"type":   "storage",
			"key":    "volumes",
			"config": map[string]any{"containers": containers},
		})
	}

	return ComponentEntry{
		ID:     name,
		Type:   "custom",
		Config: map[string]any{"requirements": reqs},
	}
}

// environmentSettings turns a service environment into app-setting entries.
// Names are prefixed with the service so settings of different services
// never collide in the shared plan.
func environmentSettings(service string, env types.MappingWithEquals) []any {
	prefix := strings.ToUpper(strings.ReplaceAll(service, "-", "_")) + "_"

	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]any, 0, len(names))
	for _, name := range names {
		value := ""
		if v := env[name]; v != nil {
			value = *v
		}
		entries = append(entries, map[string]any{"name": prefix + name, "value": value})
	}
	return entries
}

// volumeContainers maps a service's named volume mounts to storage containers.
func volumeContainers(volumes []types.ServiceVolumeConfig) []any {
	var containers []any
	seen := make(map[string]bool)
	for _, v := range volumes {
		if v.Type != "volume" || v.Source == "" || seen[v.Source] {
			continue
		}
		seen[v.Source] = true
		containers = append(containers, map[string]any{"name": v.Source})
	}
	return containers
}
