package manifest

import (
	"context"
	"fmt"
	"sort"

	"github.com/artpar/weld/internal/core/component"
	"github.com/artpar/weld/internal/core/domain"
	"github.com/artpar/weld/internal/core/requirement"
	"github.com/artpar/weld/internal/core/resource"
	"github.com/artpar/weld/internal/core/validation"
)

// =============================================================================
// webapp
// =============================================================================

// webappComponent is an HTTP application: a container in a shared document
// database, a slot on a function plan, and optionally a storage container.
type webappComponent struct {
	id          string
	databaseKey string
	database    string
	throughput  int
	consistency string
	plan        string
	runtime     string
	tier        string
	appSettings map[string]string
	storageKey  string
	container   string
	priority    int

	outputs map[string]any
}

func newWebapp(id string) component.Factory {
	return func(_ component.BuildContext, config map[string]any) (component.Component, error) {
		c := &webappComponent{
			id:          id,
			databaseKey: stringOpt(config, "databaseKey", "shared"),
			database:    stringOpt(config, "database", id),
			throughput:  intOpt(config, "throughput", 0),
			consistency: stringOpt(config, "consistency", ""),
			plan:        stringOpt(config, "plan", "shared"),
			runtime:     stringOpt(config, "runtime", ""),
			tier:        stringOpt(config, "tier", ""),
			appSettings: stringMapOpt(config, "appSettings"),
			storageKey:  stringOpt(config, "storageKey", "shared"),
			container:   stringOpt(config, "container", ""),
			priority:    intOpt(config, "priority", 0),
		}
		return c, nil
	}
}

func (c *webappComponent) Requirements() []requirement.Requirement {
	dbConfig := map[string]any{
		"containers": []any{map[string]any{"name": c.database}},
	}
	if c.throughput > 0 {
		dbConfig["throughput"] = c.throughput
	}
	if c.consistency != "" {
		dbConfig["consistency"] = c.consistency
	}

	fnConfig := map[string]any{}
	if c.runtime != "" {
		fnConfig["runtime"] = c.runtime
	}
	if c.tier != "" {
		fnConfig["tier"] = c.tier
	}
	if len(c.appSettings) > 0 {
		fnConfig["appSettings"] = settingEntries(c.appSettings)
	}

	reqs := []requirement.Requirement{
		requirement.NewWithPriority("cosmos", c.databaseKey, dbConfig, c.priority),
		requirement.NewWithPriority("functions", c.plan, fnConfig, c.priority),
	}
	if c.container != "" {
		reqs = append(reqs, requirement.NewWithPriority("storage", c.storageKey, map[string]any{
			"containers": []any{map[string]any{"name": c.container}},
		}, c.priority))
	}
	return reqs
}

func (c *webappComponent) ValidateResources(scoped *resource.ScopedView) validation.Result {
	if _, ok := scoped.Resolve("cosmos", c.databaseKey); !ok {
		return validation.Failf("database %s:%s not provided", "cosmos", c.databaseKey)
	}
	if _, ok := scoped.Resolve("functions", c.plan); !ok {
		return validation.Failf("function plan %s not provided", c.plan)
	}
	if c.container != "" {
		if _, ok := scoped.Resolve("storage", c.storageKey); !ok {
			return validation.Failf("storage %s not provided", c.storageKey)
		}
	}
	return validation.OK()
}

func (c *webappComponent) Initialize(_ context.Context, scoped *resource.ScopedView, _ domain.Scope) error {
	c.outputs = make(map[string]any)

	db, _ := scoped.Unit("cosmos:"+c.databaseKey, c.database)
	c.outputs["database_account"] = db.Name
	c.outputs["database_endpoint"] = db.Handle["endpoint"]
	c.outputs["database"] = c.database

	fn, _ := scoped.Resolve("functions", c.plan)
	if hostname, ok := fn.Handle["hostname"].(string); ok {
		c.outputs["url"] = "https://" + hostname + "/" + c.id
	}

	if c.container != "" {
		st, _ := scoped.Unit("storage:"+c.storageKey, c.container)
		if endpoint, ok := st.Handle["blobEndpoint"].(string); ok {
			c.outputs["storage_endpoint"] = endpoint + c.container
		}
	}
	return nil
}

func (c *webappComponent) Outputs() map[string]any {
	return c.outputs
}

// =============================================================================
// worker
// =============================================================================

// workerComponent is a background process that owns one instance in a
// shared compute pool.
type workerComponent struct {
	id       string
	pool     string
	name     string
	size     string
	image    string
	region   string
	priority int

	outputs map[string]any
}

func newWorker(id string) component.Factory {
	return func(_ component.BuildContext, config map[string]any) (component.Component, error) {
		c := &workerComponent{
			id:       id,
			pool:     stringOpt(config, "pool", "workers"),
			name:     stringOpt(config, "name", id),
			size:     stringOpt(config, "size", ""),
			image:    stringOpt(config, "image", ""),
			region:   stringOpt(config, "region", ""),
			priority: intOpt(config, "priority", 0),
		}
		return c, nil
	}
}

func (c *workerComponent) Requirements() []requirement.Requirement {
	config := map[string]any{
		"instances": []any{map[string]any{"name": c.name}},
	}
	if c.size != "" {
		config["size"] = c.size
	}
	if c.image != "" {
		config["image"] = c.image
	}
	if c.region != "" {
		config["region"] = c.region
	}
	return []requirement.Requirement{
		requirement.NewWithPriority("compute", c.pool, config, c.priority),
	}
}

func (c *workerComponent) ValidateResources(scoped *resource.ScopedView) validation.Result {
	if _, ok := scoped.Resolve("compute", c.pool); !ok {
		return validation.Failf("compute pool %s not provided", c.pool)
	}
	return validation.OK()
}

func (c *workerComponent) Initialize(_ context.Context, scoped *resource.ScopedView, _ domain.Scope) error {
	pool, _ := scoped.Unit("compute:"+c.pool, c.name)

	c.outputs = map[string]any{
		"pool": pool.Name,
	}
	if ip := instanceIP(pool.Handle, c.name); ip != "" {
		c.outputs["public_ip"] = ip
	}
	if key, ok := pool.Handle["sshPrivateKey"].(string); ok {
		c.outputs["ssh_private_key"] = key
	}
	return nil
}

func (c *workerComponent) Outputs() map[string]any {
	return c.outputs
}

// instanceIP finds the address of a named instance in a pool handle.
func instanceIP(handle map[string]any, name string) string {
	var instances []map[string]any
	switch v := handle["instances"].(type) {
	case []map[string]any:
		instances = v
	case []any:
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				instances = append(instances, m)
			}
		}
	}
	for _, inst := range instances {
		if inst["name"] == name || stringSuffix(inst["name"], "-"+name) {
			if ip, ok := inst["publicIp"].(string); ok {
				return ip
			}
		}
	}
	return ""
}

func stringSuffix(v any, suffix string) bool {
	s, ok := v.(string)
	return ok && len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

// =============================================================================
// site
// =============================================================================

// siteComponent is a static site served from a storage container.
type siteComponent struct {
	id             string
	storageKey     string
	container      string
	publicAccess   bool
	sku            string
	allowedOrigins []string
	priority       int

	outputs map[string]any
}

func newSite(id string) component.Factory {
	return func(_ component.BuildContext, config map[string]any) (component.Component, error) {
		c := &siteComponent{
			id:             id,
			storageKey:     stringOpt(config, "storageKey", "shared"),
			container:      stringOpt(config, "container", id),
			publicAccess:   boolOpt(config, "publicAccess", true),
			sku:            stringOpt(config, "sku", ""),
			allowedOrigins: stringsOpt(config, "allowedOrigins"),
			priority:       intOpt(config, "priority", 0),
		}
		return c, nil
	}
}

func (c *siteComponent) Requirements() []requirement.Requirement {
	config := map[string]any{
		"containers":   []any{map[string]any{"name": c.container}},
		"publicAccess": c.publicAccess,
	}
	if c.sku != "" {
		config["sku"] = c.sku
	}
	if len(c.allowedOrigins) > 0 {
		config["allowedOrigins"] = c.allowedOrigins
	}
	return []requirement.Requirement{
		requirement.NewWithPriority("storage", c.storageKey, config, c.priority),
	}
}

func (c *siteComponent) ValidateResources(scoped *resource.ScopedView) validation.Result {
	if _, ok := scoped.Resolve("storage", c.storageKey); !ok {
		return validation.Failf("storage %s not provided", c.storageKey)
	}
	return validation.OK()
}

func (c *siteComponent) Initialize(_ context.Context, scoped *resource.ScopedView, _ domain.Scope) error {
	st, _ := scoped.Unit("storage:"+c.storageKey, c.container)

	c.outputs = map[string]any{
		"account":   st.Name,
		"container": c.container,
	}
	if endpoint, ok := st.Handle["blobEndpoint"].(string); ok {
		c.outputs["endpoint"] = endpoint + c.container
	}
	return nil
}

func (c *siteComponent) Outputs() map[string]any {
	return c.outputs
}

// =============================================================================
// custom
// =============================================================================

// customComponent declares its requirements inline in the manifest entry
// instead of deriving them from a higher-level shape.
type customComponent struct {
	id   string
	reqs []requirement.Requirement

	outputs map[string]any
}

func newCustom(id string) component.Factory {
	return func(_ component.BuildContext, config map[string]any) (component.Component, error) {
		raw, ok := config["requirements"]
		if !ok {
			return nil, NewError("components["+id+"].requirements", "custom component requires a requirements list", ErrInvalidComponent)
		}
		entries, ok := raw.([]any)
		if !ok {
			return nil, NewError("components["+id+"].requirements", "requirements must be a list", ErrInvalidComponent)
		}

		reqs := make([]requirement.Requirement, 0, len(entries))
		for i, e := range entries {
			m, ok := e.(map[string]any)
			if !ok {
				return nil, NewError(
					fmt.Sprintf("components[%s].requirements[%d]", id, i),
					"requirement must be a mapping",
					ErrInvalidComponent,
				)
			}
			req := requirement.NewWithPriority(
				stringOpt(m, "type", ""),
				stringOpt(m, "key", ""),
				mapOpt(m, "config"),
				intOpt(m, "priority", 0),
			)
			if err := req.Validate(); err != nil {
				return nil, NewError(
					fmt.Sprintf("components[%s].requirements[%d]", id, i),
					err.Error(),
					ErrInvalidComponent,
				)
			}
			reqs = append(reqs, req)
		}
		return &customComponent{id: id, reqs: reqs}, nil
	}
}

func (c *customComponent) Requirements() []requirement.Requirement {
	return c.reqs
}

func (c *customComponent) ValidateResources(scoped *resource.ScopedView) validation.Result {
	for _, req := range c.reqs {
		if _, ok := scoped.Composite(req.CompositeKey()); !ok {
			return validation.Failf("resource %s not provided", req.CompositeKey())
		}
	}
	return validation.OK()
}

func (c *customComponent) Initialize(_ context.Context, scoped *resource.ScopedView, _ domain.Scope) error {
	c.outputs = make(map[string]any, len(c.reqs))
	for _, req := range c.reqs {
		p, ok := scoped.Composite(req.CompositeKey())
		if !ok {
			continue
		}
		c.outputs[req.CompositeKey()] = map[string]any{
			"name":   p.Name,
			"handle": p.Handle,
		}
	}
	return nil
}

func (c *customComponent) Outputs() map[string]any {
	return c.outputs
}

// =============================================================================
// Config Helpers
// =============================================================================

func stringOpt(config map[string]any, key, fallback string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intOpt(config map[string]any, key string, fallback int) int {
	switch v := config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func boolOpt(config map[string]any, key string, fallback bool) bool {
	if v, ok := config[key].(bool); ok {
		return v
	}
	return fallback
}

func stringsOpt(config map[string]any, key string) []string {
	switch v := config[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprintf("%v", e))
		}
		return out
	default:
		return nil
	}
}

func mapOpt(config map[string]any, key string) map[string]any {
	if v, ok := config[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

func stringMapOpt(config map[string]any, key string) map[string]string {
	raw, ok := config[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		out[k] = fmt.Sprintf("%v", v)
	}
	return out
}

// settingEntries turns a settings map into identity-keyed entries, sorted
// by name so requirement configs are deterministic.
func settingEntries(settings map[string]string) []any {
	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]any, 0, len(names))
	for _, name := range names {
		entries = append(entries, map[string]any{"name": name, "value": settings[name]})
	}
	return entries
}
