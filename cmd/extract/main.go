// Command extract runs attribute extraction on a post, for prompt debugging.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/raine/tradefeed/internal/config"
	"github.com/raine/tradefeed/internal/llm"
	"github.com/raine/tradefeed/internal/media"
)

func main() {
	config.LoadEnvFile()

	text := flag.String("text", "", "Post text to extract attributes from")
	imageURL := flag.String("image", "", "Image URL for the vision fallback")
	visionOnly := flag.Bool("vision-only", false, "Only run the vision model on -image")
	flag.Parse()

	if *text == "" && !*visionOnly {
		fmt.Fprintln(os.Stderr, "Usage: extract -text \"Nike Air Max size 9 £80\" [-image URL] [-vision-only]")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	completer := llm.NewChatCompleter(os.Getenv("GROQ_API_KEY"), os.Getenv("EXTRACT_BASE_URL"), os.Getenv("EXTRACT_MODEL"))

	var vision llm.ImageIdentifier
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		gemini, err := llm.NewGeminiIdentifier(ctx, key, os.Getenv("VISION_MODEL"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		vision = gemini
	}

	extractor := llm.NewExtractor(completer, vision, media.NewDownloader())

	var out any
	if *visionOnly {
		product, err := extractor.ExtractFromImage(ctx, *imageURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		out = product
	} else {
		var images []string
		if *imageURL != "" {
			images = []string{*imageURL}
		}
		out = extractor.Extract(ctx, *text, images)
	}

	jsonBytes, _ := json.MarshalIndent(out, "", "  ")
	fmt.Println(string(jsonBytes))
}
