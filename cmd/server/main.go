package main

import (
	"github.com/OFFIS-RIT/prospect/internal/server"
	"github.com/OFFIS-RIT/prospect/internal/util"
	"github.com/OFFIS-RIT/prospect/pkg/logger"
	"github.com/OFFIS-RIT/prospect/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug:  util.GetEnvBool("DEBUG", false),
		Format: util.GetEnvString("LOG_FORMAT", "text"),
	})
	logger.Init(consoleLogger)

	server.Init()
}
