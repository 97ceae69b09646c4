package config

import "flag"

var (
	flagConfig  = flag.String("config", "", "Path to config file")
	flagScene   = flag.String("scene", "", "Path to scene file")
	flagDebug   = flag.Bool("debug", false, "Enable debug logging")
	flagTicks   = flag.Int("ticks", 0, "Number of ticks to simulate")
	flagOut     = flag.String("out", "", "Write the mixdown to this WAV file")
	flagWorkers = flag.Int("workers", 0, "Emitters evaluated in parallel")
	flagBlend   = flag.String("blend", "", "Obstruction blend policy: average, max or min")
)

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path if provided via --config flag.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies CLI flag overrides to the config.
func applyFlags(cfg *Config) {
	if *flagDebug {
		cfg.Logging.Level = "debug"
	}
	if *flagScene != "" {
		cfg.Render.Scene = *flagScene
	}
	if *flagTicks > 0 {
		cfg.Render.Ticks = *flagTicks
	}
	if *flagOut != "" {
		cfg.Render.Out = *flagOut
	}
	if *flagWorkers > 0 {
		cfg.Propagation.Workers = *flagWorkers
	}
	if *flagBlend != "" {
		cfg.Propagation.Blend = *flagBlend
	}
}
