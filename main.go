// main.go - CLI entry point
package main

/*
Saturnis - deterministic dual-SH-2 bus arbitration and execution core

License: GPLv3 or later
*/

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func boilerPlate() {
	fmt.Println("\n\033[38;2;255;20;147m ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████\033[0m")
	fmt.Println("\nSaturnis - a deterministic dual-SH2 bus arbitration core.")
}

func main() {
	var (
		biosPath    = pflag.String("bios", "", "path to a BIOS/program image to load at address 0")
		tracePath   = pflag.String("trace", "", "write the committed trace as JSONL to this path")
		headless    = pflag.Bool("headless", false, "suppress the startup banner")
		maxSteps    = pflag.Int("max-steps", defaultMaxSteps, "maximum arbiter rounds to run (0 = unbounded)")
		dualDemo    = pflag.Bool("dual-demo", false, "force the built-in dual-CPU demo even if --bios is given")
		concurrent  = pflag.Bool("concurrent", false, "drive the CPUs with the multithreaded façade")
		haltOnFault = pflag.Bool("halt-on-fault", false, "stop the run as soon as a FAULT record is appended")
	)
	pflag.Parse()

	log := logrus.New()

	if !*headless {
		boilerPlate()
	}

	cfg := RunConfig{
		MaxSteps:    *maxSteps,
		DualDemo:    *dualDemo,
		HaltOnFault: *haltOnFault,
	}

	if *biosPath != "" {
		img, err := ReadBinaryFile(*biosPath)
		if err != nil {
			log.WithError(err).Fatal("failed to load BIOS image")
		}
		cfg.BiosImage = img
	}

	m := NewMachine(cfg)

	log.WithFields(logrus.Fields{
		"max_steps": cfg.MaxSteps,
		"dual_demo": cfg.DualDemo || cfg.BiosImage == nil,
	}).Info("starting run")

	if *concurrent {
		m.RunConcurrent(cfg.MaxSteps)
	} else {
		m.Run(cfg.MaxSteps)
	}

	log.WithField("steps", m.Steps()).Info("run complete")

	if *tracePath != "" {
		if err := m.Trace().WriteJSONL(*tracePath); err != nil {
			log.WithError(err).Fatal("failed to write trace")
		}
		log.WithField("path", *tracePath).Info("trace written")
	}

	os.Exit(0)
}
