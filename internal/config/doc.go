// Package config loads AfterImage settings from defaults, an optional YAML
// file and AFTERIMAGE_* environment variables, validates them, and converts
// each section into the configuration type of the package it drives.
//
// Environment variables map onto keys by replacing dots with underscores:
//
//	AFTERIMAGE_INJECTION_MAX_TOKENS=1000
//	AFTERIMAGE_INJECTION_SCORING_WEIGHTS_SEMANTIC=0.4
package config
