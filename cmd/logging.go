package cmd

import (
	"github.com/achilleasa/lightbvh/log"
	"github.com/urfave/cli"
)

var logger = log.New("lightbvh")

func setupLogging(ctx *cli.Context) {
	if levelName := ctx.GlobalString("log-level"); levelName != "" {
		level, err := log.ParseLevel(levelName)
		if err != nil {
			logger.Warningf("%s; falling back to notice level", err.Error())
		}
		log.SetLevel(level)
	}

	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
