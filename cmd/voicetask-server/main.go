package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"voicetask-server-go/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "", "path to the configuration file, defaults to .config.yaml or config.yaml")
	noDotEnv := flag.Bool("no-dotenv", false, "skip loading variables from .env")
	flag.Parse()

	fmt.Printf("[%s] [INFO] [BOOT] starting voicetask-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background(), bootstrap.Options{
		ConfigPath: *configPath,
		UseDotEnv:  !*noDotEnv,
	}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "voicetask-server failed: %v\n", err)
		os.Exit(1)
	}
}
