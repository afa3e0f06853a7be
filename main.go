/*
This is an example application that drives the engine package with
the demo scene under assets/.
*/
package main

import (
	"flag"

	"github.com/joedavisdev/kiln/engine"
	"github.com/joedavisdev/kiln/testbed"
)

func main() {
	configPath := flag.String("config", "kiln.toml", "path to the engine configuration")
	flag.Parse()

	config, err := engine.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	game := testbed.NewDemoGame()

	kiln, err := engine.New(config, game.Game)
	if err != nil {
		panic(err)
	}

	if err := kiln.Initialize(); err != nil {
		panic(err)
	}

	if err := kiln.Run(); err != nil {
		panic(err)
	}

	if err := kiln.Shutdown(); err != nil {
		panic(err)
	}
}
