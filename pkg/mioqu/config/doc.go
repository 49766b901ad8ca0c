/*
Package config provides typed extraction of queue and reactor settings from
map[string]any documents.

# Overview

A Config wraps a decoded YAML or JSON document. Accessors never fail: a
missing key or a value of the wrong type yields the supplied default, so the
caller's defaults stay authoritative.

# Basic Usage

	cfg, err := config.FromFile("mioqu.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	reactorCfg := reactor.FromConfig(cfg.Sub("reactor"))
	opts := mioqu.OptionsFromConfig(cfg.Sub("queue"))

A matching document:

	name: counters
	startup_timeout: 5s
	metrics: true
	reactor:
	  io_poll_timeout: 1s
	  notify_capacity: 4096
	  messages_per_tick: 256
	  timer_tick: 10ms
	  timer_capacity: 65536

# Durations

Duration accepts a time.ParseDuration string ("10ms", "1s"), a time.Duration,
or a bare number, which is read as milliseconds because reactor timings are
configured at millisecond resolution.
*/
package config
