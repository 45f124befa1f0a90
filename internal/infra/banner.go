package infra

import (
	"fmt"
)

// ANSI Color Codes
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorCyan   = "\033[36m"
)

// PrintBanner displays the startup banner.
func PrintBanner(cfg *Config) {
	version := cfg.App.Version

	color := ColorGreen
	feedDesc := "LIVE FEED"
	if cfg.Recorder.Enabled {
		color = ColorCyan
		feedDesc = "LIVE FEED + RECORDER"
	}

	keyDesc := "public endpoints only"
	if cfg.Exchanges.Binance.APIKey != "" {
		keyDesc = "signed endpoints enabled"
	}

	fmt.Println()
	fmt.Printf("%s###########################################################%s\n", color, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)
	fmt.Printf("%s#               📡 unifeed Market Data Core               #%s\n", color, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)
	fmt.Printf("%s#   MODE:    %-36s #%s\n", color, feedDesc, ColorReset)
	fmt.Printf("%s#   AUTH:    %-36s #%s\n", color, keyDesc, ColorReset)
	fmt.Printf("%s#   VERSION: %-36s #%s\n", color, version, ColorReset)
	fmt.Printf("%s#                                                         #%s\n", color, ColorReset)
	fmt.Printf("%s###########################################################%s\n", color, ColorReset)
	fmt.Println()
}
