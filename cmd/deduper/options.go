package main

import (
	"github.com/rflorenc/pan-deduper/internal/config"
)

// Options are the global flags and sub-commands. The struct tags are
// interpreted by github.com/jessevdk/go-flags.
type Options struct {
	Config  string `short:"c" long:"config" description:"settings file (created with defaults when missing)" default:"deduper.yaml"`
	Verbose bool   `short:"v" long:"verbose" description:"debug logging on the console"`
	Version bool   `long:"version" description:"print the version and exit"`

	XML      XMLCmd      `command:"xml" description:"Gather objects and services from a Panorama configuration export"`
	Panorama PanoramaCmd `command:"panorama" description:"Gather objects and services from a live Panorama"`
	Rules    RulesCmd    `command:"rules" description:"Find security rules that can be merged"`
	Serve    ServeCmd    `command:"serve" description:"Start the HTTP API"`
	Init     InitCmd     `command:"init-config" description:"Write the default settings file"`
}

// RunFlags override settings file values for a single run.
type RunFlags struct {
	Deep         bool     `short:"d" long:"deep" description:"compare values, not only names"`
	Push         bool     `long:"push" description:"create and delete objects on Panorama"`
	Emit         bool     `long:"emit" description:"write set commands instead of pushing"`
	Minimum      *int     `short:"m" long:"minimum" description:"minimum number of device groups holding an object"`
	Kinds        []string `short:"k" long:"kind" description:"object kind to search (repeatable)"`
	Destinations []string `long:"destination" description:"device group to move duplicates to (repeatable)"`
	Include      []string `long:"include" description:"only search this device group (repeatable)"`
	Exclude      []string `long:"exclude" description:"skip this device group (repeatable)"`
	GuardDeletes bool     `long:"guard-deletes" description:"keep objects whose consolidated copy could not be created"`
	Yes          bool     `short:"y" long:"yes" description:"do not ask for confirmation"`
	Output       string   `short:"o" long:"output" description:"directory or afs URL for reports"`
}

// apply layers the flags over cfg. Flags take precedence.
func (f RunFlags) apply(cfg *config.Config) {
	if f.Deep {
		cfg.Deep = true
	}
	if f.Push {
		cfg.PushEnabled = true
	}
	if f.Emit {
		cfg.EmitCommands = true
	}
	if f.Minimum != nil {
		cfg.MinimumDuplicates = *f.Minimum
	}
	if len(f.Kinds) > 0 {
		cfg.ObjectKinds = f.Kinds
	}
	if len(f.Destinations) > 0 {
		cfg.DestinationUnits = f.Destinations
	}
	if len(f.Include) > 0 {
		cfg.UnitAllowlist = f.Include
	}
	if len(f.Exclude) > 0 {
		cfg.UnitDenylist = f.Exclude
	}
	if f.GuardDeletes {
		cfg.GuardDeletes = true
	}
	if f.Yes {
		cfg.AssumeYes = true
	}
	if f.Output != "" {
		cfg.OutputDir = f.Output
	}
	cfg.Normalize()
}

// PanoramaFlags select and authenticate against a live Panorama.
type PanoramaFlags struct {
	Host     string `short:"i" long:"ip" description:"Panorama IP or FQDN"`
	Username string `short:"u" long:"username" description:"Panorama username"`
	APIKey   string `long:"api-key" description:"API key (skips key generation)"`
	Backend  string `long:"backend" description:"API backend" choice:"rest" choice:"xmlapi"`
	Ping     bool   `long:"ping" description:"check ICMP reachability before connecting"`
}

func (f PanoramaFlags) apply(cfg *config.Config) {
	if f.Host != "" {
		cfg.Panorama.Host = f.Host
	}
	if f.Username != "" {
		cfg.Panorama.Username = f.Username
	}
	if f.APIKey != "" {
		cfg.Panorama.APIKey = f.APIKey
	}
	if f.Backend != "" {
		cfg.Panorama.Backend = f.Backend
	}
	if f.Ping {
		cfg.Panorama.Ping = true
	}
}

// XMLCmd reads objects from a configuration export.
type XMLCmd struct {
	RunFlags
	Args struct {
		File string `positional-arg-name:"FILE" description:"Panorama configuration export"`
	} `positional-args:"yes" required:"yes"`
}

// PanoramaCmd reads objects from a live Panorama.
type PanoramaCmd struct {
	RunFlags
	PanoramaFlags
}

// RulesCmd renders security rule merges, from a file when given.
type RulesCmd struct {
	PanoramaFlags
	File    string   `short:"f" long:"file" description:"Panorama configuration export"`
	Include []string `long:"include" description:"only check this device group (repeatable)"`
	Exclude []string `long:"exclude" description:"skip this device group (repeatable)"`
	Output  string   `short:"o" long:"output" description:"directory or afs URL for command files"`
}

// ServeCmd starts the HTTP API.
type ServeCmd struct {
	PanoramaFlags
	Listen string `short:"l" long:"listen" description:"listen address"`
	File   string `short:"f" long:"file" description:"serve runs from a configuration export instead of Panorama"`
}

// InitCmd writes the settings template.
type InitCmd struct{}
