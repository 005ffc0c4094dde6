// Package config provides configuration management for wsctl.
//
// Configuration is loaded from multiple sources and merged in a specific
// order, with later sources overriding earlier ones:
//
//  1. Default configuration (GetDefaultConfig): local Docker engine,
//     multi-host exposure below 127.0.0.1.nip.io, 1Gi memory per machine.
//  2. User configuration (~/.config/wsctl/config.yaml).
//  3. Project configuration (./.wsctl/config.yaml).
//
// A file passed with --config replaces layers 2 and 3.
//
// # Configuration Structure
//
//	infrastructure: kubernetes   # or docker
//	exposure:
//	  strategy: single-port      # or multi-host
//	  domain: apps.example.com   # multi-host: <server>-<machine>-<workspace>.<domain>
//	  host: ide.example.com      # single-port: <host>/<workspace>/<machine>/<server>
//	  port: 443
//	  protocol: https
//	kubernetes:
//	  context: prod-eu
//	  namespace: workspaces
//	  ingressClass: nginx
//	docker:
//	  host: unix:///var/run/docker.sock
//	  network: wsruntime
//	defaults:
//	  memoryLimit: 2Gi
//
// Only fields that are set in a layer override the layer below; a layer can
// not reset a field to its zero value.
package config
