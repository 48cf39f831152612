// Package config provides configuration types, loading, validation and
// file watching for the edge gateway.
//
// Configuration is a single YAML document. Values of the form ${VAR} or
// ${VAR:-default} are substituted from the environment before parsing,
// zero values are filled by ApplyDefaults, and Validate reports every
// problem as a util.ConfigError.
//
//	cfg, err := config.LoadConfig("configs/gateway.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// A Watcher reloads the file on change. A reload that fails to parse or
// validate is rejected and the previous configuration stays active:
//
//	w, err := config.NewWatcher(path, func(cfg *config.Config) {
//	    runtime.Swap(cfg)
//	}, config.WithLogger(logger))
package config
