package controller

import (
	"io/ioutil"
	"os"

	"gopkg.in/yaml.v2"
)

// FlushSchedule describes a recurring line flush for one unit. The rule
// uses RFC 5545 recurrence syntax, e.g. "FREQ=DAILY;BYHOUR=6".
type FlushSchedule struct {
	Unit int    `yaml:"unit"`
	Rule string `yaml:"rule"`
	Ms   int    `yaml:"ms"`
}

type Options struct {
	Database   string          `yaml:"database"`
	Listen     string          `yaml:"listen"`
	BridgeURL  string          `yaml:"bridge_url"`
	Simulate   bool            `yaml:"simulate"`
	MQTTBroker string          `yaml:"mqtt_broker"`
	Flushes    []FlushSchedule `yaml:"flushes"`
}

func DefaultOptions() Options {
	return Options{
		Database:  "evencrop.db",
		Listen:    "127.0.0.1:8090",
		BridgeURL: "ws://127.0.0.1:9000/ws",
	}
}

// LoadOptions reads a YAML config file on top of the defaults. A missing
// file is not an error; you get the defaults back.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if path == "" {
		return opts, nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, err
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, err
	}
	return opts, nil
}
