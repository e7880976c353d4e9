// Package config handles loading and validating the home orchestrator's
// process configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The home-automation document itself (commands, light scenes, sensors,
// keypad) is not part of this configuration. Home.ConfigFile points at it
// and the automation package parses, validates and hot-reloads it.
//
// Security Considerations:
//   - Sensitive values (passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Home.ConfigFile)
package config
