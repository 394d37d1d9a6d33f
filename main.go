package main

import (
	"context"
	"embed"
	"fmt"
	"os"

	"github.com/jeandeaual/go-locale"

	"github.com/egoavara/modmgr/cmd"
	"github.com/egoavara/modmgr/internal/config"
	"github.com/egoavara/modmgr/internal/i18n"
)

//go:embed locales/*.json
var localeFS embed.FS

func main() {
	if err := i18n.Init(localeFS, getLocale()); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: cannot load translations: %v\n", err)
	}

	// Register mod aliases (install, uninstall, search, update)
	cmd.RegisterModAliases()

	cmd.Execute(context.Background())
}

// getLocale returns the locale based on config
func getLocale() string {
	configLocale := config.GetLocale()

	// If "auto", detect system locale
	if configLocale == "auto" {
		userLocale, err := locale.GetLocale()
		if err != nil || userLocale == "" {
			return "en-US"
		}
		return userLocale
	}

	// Use configured locale
	return configLocale
}
