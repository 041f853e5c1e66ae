package main

import (
	"context"
	"os"

	"github.com/getsavvyinc/ghinstall/config"
	"github.com/getsavvyinc/ghinstall/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}

	if err := newRootCmd(cfg).ExecuteContext(context.Background()); err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
