package main

import (
	"github.com/urfave/cli/v2"

	"github.com/denwilliams/go-mqtt-dashboard/pkg/config"
)

var FlagConfig = &cli.StringFlag{
	Name:    "config",
	Usage:   "path to the YAML configuration file",
	EnvVars: []string{"DASHBOARD_CONFIG"},
	Value:   config.DefaultPath,
}

var FlagLayout = &cli.StringFlag{
	Name:    "layout",
	Usage:   "layout file holding the broker address and subscriptions",
	EnvVars: []string{"DASHBOARD_LAYOUT"},
}

var FlagHost = &cli.StringFlag{
	Name:    "host",
	Usage:   "MQTT broker host, overrides the layout",
	EnvVars: []string{"MQTT_HOST"},
}

var FlagPort = &cli.IntFlag{
	Name:    "port",
	Usage:   "MQTT broker port, overrides the layout",
	EnvVars: []string{"MQTT_PORT"},
}

var FlagLogLevel = &cli.StringFlag{
	Name:    "log-level",
	Usage:   "one of: [trace, debug, info, warn, error]",
	EnvVars: []string{"LOG_LEVEL"},
}

var FlagLogWriter = &cli.StringFlag{
	Name:    "log-writer",
	Usage:   "one of: [console, json]",
	EnvVars: []string{"LOG_WRITER"},
}

var FlagWebPort = &cli.IntFlag{
	Name:    "web-port",
	Usage:   "serve the HTTP API on this port",
	EnvVars: []string{"WEB_PORT"},
}

var FlagNoTUI = &cli.BoolFlag{
	Name:    "no-tui",
	Usage:   "run headless without the terminal dashboard",
	EnvVars: []string{"DASHBOARD_NO_TUI"},
}

var FlagTopic = &cli.StringFlag{
	Name:     "topic",
	Usage:    "topic to publish to",
	Required: true,
}

var FlagPayload = &cli.StringFlag{
	Name:  "payload",
	Usage: "message payload",
}

var FlagWait = &cli.DurationFlag{
	Name:  "wait",
	Usage: "how long to wait for the broker connection",
	Value: defaultPublishWait,
}

var Flags = []cli.Flag{
	FlagConfig,
	FlagLayout,
	FlagHost,
	FlagPort,
	FlagLogLevel,
	FlagLogWriter,
	FlagWebPort,
	FlagNoTUI,
}
