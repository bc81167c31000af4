// Package plugins is the registry of kv drivers
// available to this process
package plugins

import (
	"fmt"

	"github.com/jrife/overworked/storage/kv"
)

var plugins []kv.Plugin

func init() {
	plugins = append(plugins, &kv.BBoltPlugin{}, &kv.MemoryPlugin{})
}

// Plugin returns the plugin whose name matches the given name.
// It returns nil if no such plugin is found.
func Plugin(name string) kv.Plugin {
	for _, plugin := range plugins {
		if plugin.Name() == name {
			return plugin
		}
	}

	return nil
}

// Plugins lists all the plugins that are available
func Plugins() []kv.Plugin {
	return plugins
}

// Open opens a root store using the named driver
func Open(name string, options kv.PluginOptions) (kv.RootStore, error) {
	plugin := Plugin(name)

	if plugin == nil {
		return nil, fmt.Errorf("no kv plugin named %q", name)
	}

	rootStore, err := plugin.NewRootStore(options)

	if err != nil {
		return nil, fmt.Errorf("could not open %s root store: %w", name, err)
	}

	return rootStore, nil
}
