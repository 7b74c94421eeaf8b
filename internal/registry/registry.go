// Package registry implements the Unified Registry (C1): a single
// process-wide store of tools, agents, chains, workflow/llm factories and
// node executors, indexed by (kind, name) and by (entity_class, name). The
// registry never performs network I/O — it is a lookup table, not a client.
package registry

import (
	"fmt"
	"os"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/iceos/orchestrator/internal/blueprint"
)

// WorkflowFactory builds a workflow-node runnable from config overrides.
type WorkflowFactory func(config map[string]interface{}) (interface{}, error)

// LLMFactory builds an LLM client/runnable from llm_config.
type LLMFactory func(config map[string]interface{}) (interface{}, error)

// Registry is the process-wide store. It is read-heavy after startup: all
// mutation goes through a single mutex, and lookups take a read lock.
type Registry struct {
	mu sync.RWMutex

	classes   map[string]interface{} // "kind|name" -> class/constructor
	instances map[string]interface{} // "kind|name" -> instance
	agents    map[string]string      // agent name -> import path
	chains    map[string]interface{} // chain name -> chain object

	workflowFactories map[string]WorkflowFactory
	llmFactories      map[string]LLMFactory
	executors         map[blueprint.Kind]interface{}
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		classes:           make(map[string]interface{}),
		instances:         make(map[string]interface{}),
		agents:            make(map[string]string),
		chains:            make(map[string]interface{}),
		workflowFactories: make(map[string]WorkflowFactory),
		llmFactories:      make(map[string]LLMFactory),
		executors:         make(map[blueprint.Kind]interface{}),
	}
}

func key(kind, name string) string { return kind + "|" + name }

// sameTarget reports whether two registration targets are the same thing,
// so re-registering an identical target is idempotent rather than a
// Conflict. Funcs compare by code pointer; everything else by deep equality.
func sameTarget(a, b interface{}) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() == reflect.Func && vb.Kind() == reflect.Func {
		return va.Pointer() == vb.Pointer()
	}
	return reflect.DeepEqual(a, b)
}

// RegisterClass registers a tool class/constructor under (kind, name).
func (r *Registry) RegisterClass(kind, name string, class interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(kind, name)
	if existing, ok := r.classes[k]; ok && !sameTarget(existing, class) {
		return &ConflictError{EntityClass: kind, Name: name}
	}
	r.classes[k] = class
	return nil
}

// RegisterInstance registers a concrete tool instance under (kind, name).
func (r *Registry) RegisterInstance(kind, name string, obj interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(kind, name)
	if existing, ok := r.instances[k]; ok && !sameTarget(existing, obj) {
		return &ConflictError{EntityClass: kind, Name: name}
	}
	r.instances[k] = obj
	return nil
}

// RegisterAgent registers an agent's import path by name.
func (r *Registry) RegisterAgent(name, importPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.agents[name]; ok && existing != importPath {
		return &ConflictError{EntityClass: "agent", Name: name}
	}
	r.agents[name] = importPath
	return nil
}

// RegisterChain registers a named chain object.
func (r *Registry) RegisterChain(name string, obj interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.chains[name]; ok && !sameTarget(existing, obj) {
		return &ConflictError{EntityClass: "chain", Name: name}
	}
	r.chains[name] = obj
	return nil
}

// RegisterWorkflowFactory registers a named workflow factory.
func (r *Registry) RegisterWorkflowFactory(name string, factory WorkflowFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.workflowFactories[name]; ok && !sameTarget(existing, factory) {
		return &ConflictError{EntityClass: "workflow_factory", Name: name}
	}
	r.workflowFactories[name] = factory
	return nil
}

// RegisterLLMFactory registers a named LLM factory.
func (r *Registry) RegisterLLMFactory(name string, factory LLMFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.llmFactories[name]; ok && !sameTarget(existing, factory) {
		return &ConflictError{EntityClass: "llm_factory", Name: name}
	}
	r.llmFactories[name] = factory
	return nil
}

// RegisterExecutor registers the executor implementation for a node kind.
// fn's concrete type is the executor package's Executor interface; stored
// as interface{} here so this package never imports the executor package.
func (r *Registry) RegisterExecutor(kind blueprint.Kind, fn interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.executors[kind]; ok && !sameTarget(existing, fn) {
		return &ConflictError{EntityClass: "node_executor", Name: string(kind)}
	}
	r.executors[kind] = fn
	return nil
}

// GetToolInstance returns the registered tool instance for name.
func (r *Registry) GetToolInstance(name string) (interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if obj, ok := r.instances[key("tool", name)]; ok {
		return obj, nil
	}
	return nil, &NotFoundError{EntityClass: "tool", Name: name}
}

// GetAgentImportPath returns the import path registered for an agent name.
func (r *Registry) GetAgentImportPath(name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.agents[name]; ok {
		return p, nil
	}
	return "", &NotFoundError{EntityClass: "agent", Name: name}
}

// GetWorkflowInstance builds a workflow instance from its registered
// factory.
func (r *Registry) GetWorkflowInstance(name string, config map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	factory, ok := r.workflowFactories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{EntityClass: "workflow", Name: name}
	}
	return factory(config)
}

// GetLLMInstance builds an LLM client from its registered factory.
func (r *Registry) GetLLMInstance(name string, config map[string]interface{}) (interface{}, error) {
	r.mu.RLock()
	factory, ok := r.llmFactories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{EntityClass: "llm_factory", Name: name}
	}
	return factory(config)
}

// GetExecutor returns the registered executor for a node kind.
func (r *Registry) GetExecutor(kind blueprint.Kind) (interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if fn, ok := r.executors[kind]; ok {
		return fn, nil
	}
	return nil, &NotFoundError{EntityClass: "node_executor", Name: string(kind)}
}

// HasTool, HasAgent and HasWorkflow satisfy validator.RegistryLookup.
func (r *Registry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.instances[key("tool", name)]
	if !ok {
		_, ok = r.classes[key("tool", name)]
	}
	return ok
}

func (r *Registry) HasAgent(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[name]
	return ok
}

func (r *Registry) HasWorkflow(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.workflowFactories[name]
	return ok
}

// pluginManifest is the declarative shape read by LoadPlugins.
type pluginManifest struct {
	Tools []struct {
		Name string `yaml:"name"`
		Kind string `yaml:"kind"`
	} `yaml:"tools"`
	Agents []struct {
		Name       string `yaml:"name"`
		ImportPath string `yaml:"import_path"`
	} `yaml:"agents"`
	Workflows []struct {
		Name string `yaml:"name"`
	} `yaml:"workflows"`
}

// LoadPlugins populates the registry from a YAML manifest. Agent entries are
// registered with their import paths; tool entries register placeholder
// class markers for the names the manifest declares, and callers still need
// to call RegisterInstance with the real implementation once it's loaded.
// Workflow entries are parsed but not registered: a workflow named only in
// the manifest is unknown to the registry until RegisterWorkflowFactory is
// called for it.
func (r *Registry) LoadPlugins(manifestPath string) error {
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return fmt.Errorf("registry: read manifest %s: %w", manifestPath, err)
	}

	var manifest pluginManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("registry: parse manifest %s: %w", manifestPath, err)
	}

	for _, a := range manifest.Agents {
		if err := r.RegisterAgent(a.Name, a.ImportPath); err != nil {
			return err
		}
	}
	for _, t := range manifest.Tools {
		kind := t.Kind
		if kind == "" {
			kind = "tool"
		}
		if err := r.RegisterClass(kind, t.Name, t.Name); err != nil {
			return err
		}
	}
	return nil
}

// EntryPoint is one registration contributed by LoadEntryPoints.
type EntryPoint struct {
	EntityClass string
	Name        string
	Target      interface{}
}

// LoadEntryPoints registers a caller-supplied list of entry points under a
// named group. Go has no runtime plugin-discovery equivalent to Python
// entry_points, so callers assemble the list (typically from an init-time
// registration list compiled into the binary) and hand it to this method,
// which applies the same idempotent-registration semantics as the other
// Register* methods.
func (r *Registry) LoadEntryPoints(group string, points []EntryPoint) error {
	for _, p := range points {
		switch p.EntityClass {
		case "tool":
			if err := r.RegisterInstance("tool", p.Name, p.Target); err != nil {
				return err
			}
		case "agent":
			importPath, ok := p.Target.(string)
			if !ok {
				return fmt.Errorf("registry: entry point %q in group %q: agent target must be an import path string", p.Name, group)
			}
			if err := r.RegisterAgent(p.Name, importPath); err != nil {
				return err
			}
		case "chain":
			if err := r.RegisterChain(p.Name, p.Target); err != nil {
				return err
			}
		default:
			return fmt.Errorf("registry: entry point %q in group %q: unknown entity_class %q", p.Name, group, p.EntityClass)
		}
	}
	return nil
}
