// Command train trains a DDPG or MPO agent described by a YAML or JSON
// experiment configuration file.
//
// Usage:
//
//	train --config config.yaml [--episodes N] [--load checkpoint.gob]
//	      [--metrics metrics.gob] [--progress] [--print-config]
//
// Flags may also be given as environment variables prefixed with
// GOCONTROL_, for example GOCONTROL_EPISODES=10.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"

	"github.com/aunum/log"
	_ "github.com/samuelfneumann/gocontrol/agent/nonlinear/continuous/ddpg"
	_ "github.com/samuelfneumann/gocontrol/agent/nonlinear/continuous/mpo"
	"github.com/samuelfneumann/gocontrol/experiment"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func main() {
	flags := pflag.NewFlagSet("train", pflag.ExitOnError)
	flags.StringP("config", "c", "config.yaml", "experiment configuration file")
	flags.IntP("episodes", "e", 0, "number of episodes to train for, "+
		"overriding the configuration if > 0")
	flags.String("load", "", "checkpoint to resume training from")
	flags.String("metrics", "metrics.gob", "file to save training metrics "+
		"to, or empty to not save metrics")
	flags.Bool("progress", false, "display a progress bar")
	flags.Bool("print-config", false, "print the resolved configuration "+
		"and exit")
	if err := flags.Parse(os.Args[1:]); err != nil {
		log.Fatalf("could not parse flags: %v", err)
	}

	vp := viper.New()
	vp.SetEnvPrefix("gocontrol")
	vp.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	vp.AutomaticEnv()
	if err := vp.BindPFlags(flags); err != nil {
		log.Fatalf("could not bind flags: %v", err)
	}

	c, err := experiment.FromFile(vp.GetString("config"))
	if err != nil {
		log.Fatalf("could not load configuration: %v", err)
	}
	if vp.GetBool("print-config") {
		if err := c.WriteYAML(os.Stdout); err != nil {
			log.Fatalf("could not print configuration: %v", err)
		}
		return
	}

	opts := c.Agent.TrainOptions()
	if episodes := vp.GetInt("episodes"); episodes > 0 {
		opts.Episodes = episodes
	}
	opts.ProgressBar = vp.GetBool("progress")

	o, err := experiment.NewOnline(c, opts, vp.GetString("metrics"))
	if err != nil {
		log.Fatalf("could not create experiment: %v", err)
	}
	if path := vp.GetString("load"); path != "" {
		if err := o.Load(path); err != nil {
			log.Fatalf("could not resume training: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	log.Infof("training %v agent on %v", c.Agent.Type,
		c.Environment.Environment)
	if err := o.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Infof("training interrupted at episode %d",
				o.Trainer().Episode())
			return
		}
		log.Fatalf("training failed: %v", err)
	}
}
