// Package config loads the configuration of the cpa command.
//
// Configuration is read from a single YAML file, by default
// ~/.config/cpa/config.yaml. Defaults are applied first, then the file,
// then environment overrides:
//
//   - CPA_CONFIG selects another configuration file
//   - CPA_PROVIDER_URL overrides provider.url
//
// A missing file is not an error; the defaults are used.
//
// # Example
//
//	provider:
//	  url: https://cpa.example
//	  timeout: 30s
//	client:
//	  name: Radio Player
//	  softwareID: radio-player
//	  softwareVersion: "2.1"
//	store:
//	  backend: file
//	  keyFile: ~/.config/cpa/store.key
//	polling:
//	  slowDownIncrement: 5s
//	  maxDuration: 15m
//	logging:
//	  level: info
//	  format: text
//	metrics:
//	  listen: 127.0.0.1:9464
package config
