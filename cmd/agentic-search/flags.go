package main

import (
	"fmt"
	"sort"

	"github.com/spf13/pflag"

	"github.com/dshills/agentic-search-mcp/internal/config"
)

// flagSource exposes only the flags the user actually set, so unset flags
// fall through to the resolver's defaults
type flagSource struct {
	flags *pflag.FlagSet
}

func (s flagSource) Lookup(key string) (string, bool) {
	f := s.flags.Lookup(key)
	if f == nil || !f.Changed {
		return "", false
	}
	return f.Value.String(), true
}

func addBackendFlags(fs *pflag.FlagSet, mode config.Mode) {
	flags := config.Flags(mode)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fs.String(name, "", flagUsage(flags[name], config.DefaultFor(name)))
	}
}

func flagUsage(env, def string) string {
	usage := fmt.Sprintf("overridden by %s", env)
	if def != "" && len(def) <= 40 {
		usage += fmt.Sprintf(" (default %q)", def)
	}
	return usage
}
