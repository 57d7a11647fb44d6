// Command detect-text runs document text detection on one image and prints
// the result. The image is a local file or an http(s)/gs URI.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/pollinator/api/internal/client"
	"github.com/pollinator/api/internal/config"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: detect-text <image-path|uri>")
		os.Exit(2)
	}
	source := os.Args[1]

	cfg := config.Read()
	if cfg.OCR.APIKey == "" {
		log.Fatal("OCR_API_KEY required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	vision := client.NewVisionClient(&cfg.OCR)

	var (
		text string
		err  error
	)
	if isRemote(source) {
		text, err = vision.DetectTextURI(ctx, source)
	} else {
		image, readErr := os.ReadFile(source)
		if readErr != nil {
			log.Fatalf("Failed to read %s: %v", source, readErr)
		}
		text, err = vision.DetectText(ctx, image)
	}
	if err != nil {
		log.Fatalf("Text detection failed: %v", err)
	}

	if text == "" {
		log.Printf("No text found in %s", source)
		return
	}
	fmt.Println(text)
}

func isRemote(source string) bool {
	for _, scheme := range []string{"http://", "https://", "gs://"} {
		if strings.HasPrefix(source, scheme) {
			return true
		}
	}
	return false
}
