// Package cmd provides common initialization for the service binaries.
package cmd

import (
	"log/slog"

	"github.com/karzal/wove/pkg/blocks/condition"
	"github.com/karzal/wove/pkg/blocks/trigger"
	"github.com/karzal/wove/pkg/registry"
	"github.com/karzal/wove/pkg/tools/httprequest"
	log_tool "github.com/karzal/wove/pkg/tools/log"
	"github.com/karzal/wove/pkg/tools/queue"
	"github.com/karzal/wove/pkg/tools/transform"
)

func registerNativeTools(reg *registry.Registry) {
	if err := reg.RegisterTool(httprequest.NewToolFactory()); err != nil {
		panic(err)
	}

	if err := reg.RegisterTool(transform.NewToolFactory()); err != nil {
		panic(err)
	}

	if err := reg.RegisterTool(log_tool.NewLogToolFactory()); err != nil {
		panic(err)
	}

	if err := reg.RegisterTool(queue.NewToolFactory()); err != nil {
		panic(err)
	}
}

func registerBlockHandlers(reg *registry.Registry) {
	reg.RegisterBlockHandler(condition.NewHandler())
	reg.RegisterBlockHandler(trigger.NewHandler())
}

// NewRegistry builds a registry with every native tool and block handler
// registered. Registration panics on a bad tool schema; that is a
// programming error, not a runtime condition.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerNativeTools(reg)
	registerBlockHandlers(reg)

	return reg
}
