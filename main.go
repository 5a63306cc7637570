package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/MersadMolaei/Pixelizer/config"
	"github.com/MersadMolaei/Pixelizer/pkg/pixelizer"
	"github.com/MersadMolaei/Pixelizer/service"
)

const apiKeyEnv = "PIXELIZER_API_KEY"

func main() {
	//long-running modes share the one-shot flag surface but only need --config
	mode := ""
	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "serve" || args[0] == "worker") {
		mode = args[0]
		args = args[1:]
	}

	flags := flag.NewFlagSet("pixelizer", flag.ExitOnError)
	apiKey := flags.String("api-key", "", "API key for the face pixelizer service")
	imageURL := flags.String("url", "", "URL of the image to pixelize")
	filePath := flags.String("file", "", "path to the local image file to pixelize")
	output := flags.String("output", "", "where to save the pixelized image (derived from the result URL when empty)")
	noDownload := flags.Bool("no-download", false, "only print the result URL, do not download the image")
	configFile := flags.String("config", "", "path to the yaml config file")
	if err := flags.Parse(args); err != nil {
		log.Fatalf("failed to parse flags: %v", err)
	}

	var cfg *config.Config
	if *configFile != "" {
		var err error
		cfg, err = config.InitConfig(*configFile)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	switch mode {
	case "serve":
		if cfg == nil {
			log.Fatalf("serve mode needs --config")
		}
		if err := service.NewRegisterService(cfg).StartService(); err != nil {
			log.Fatalf("failed to start register service: %v", err)
		}
	case "worker":
		if cfg == nil {
			log.Fatalf("worker mode needs --config")
		}
		if err := service.NewWorkerService(cfg).StartService(); err != nil {
			log.Fatalf("failed to start worker service: %v", err)
		}
	default:
		if err := runOnce(cfg, *apiKey, *imageURL, *filePath, *output, *noDownload); err != nil {
			log.Fatal(err)
		}
	}
}

// runOnce performs a single pixelize-then-download invocation.
func runOnce(cfg *config.Config, apiKey, imageURL, filePath, output string, noDownload bool) error {
	if (imageURL == "") == (filePath == "") {
		return fmt.Errorf("exactly one of --url or --file is required")
	}

	key, baseURL, timeout := resolveCredential(cfg, apiKey)
	if key == "" {
		return fmt.Errorf("no API key: pass --api-key, set %s or put it in the config file", apiKeyEnv)
	}

	client := pixelizer.NewClient(baseURL, key)
	if timeout > 0 {
		client.SetHTTPClient(&http.Client{Timeout: timeout})
	}

	ctx := context.Background()
	resultURL, err := client.Pixelize(ctx, pixelizer.Request{ImageURL: imageURL, FilePath: filePath})
	if err != nil {
		return fmt.Errorf("failed to pixelize image: %w", err)
	}
	log.Printf("successfully pixelized image, result URL: %s", resultURL)

	if noDownload {
		return nil
	}

	if output == "" {
		output = pixelizer.OutputFilename(resultURL)
	}
	saved, err := pixelizer.NewDownloader().Download(ctx, resultURL, output)
	if err != nil {
		//the remote transform did succeed, keep the result URL visible
		return fmt.Errorf("pixelized successfully but failed to download (the result URL above is still valid): %w", err)
	}
	log.Printf("saved pixelized image to %s", saved)
	return nil
}

// resolveCredential picks the API key from the flag, the environment or the
// config file, in that order, along with config-level client settings.
func resolveCredential(cfg *config.Config, flagKey string) (key, baseURL string, timeout time.Duration) {
	key = flagKey
	if key == "" {
		key = os.Getenv(apiKeyEnv)
	}
	if cfg != nil {
		if key == "" {
			key = cfg.Pixelizer.APIKey
		}
		baseURL = cfg.Pixelizer.BaseURL
		if cfg.Pixelizer.TimeoutSeconds > 0 {
			timeout = time.Duration(cfg.Pixelizer.TimeoutSeconds) * time.Second
		}
	}
	return key, baseURL, timeout
}
