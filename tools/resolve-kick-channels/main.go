package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/john/speakerlog/internal/config"
	"github.com/john/speakerlog/internal/kick"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: resolve-kick-channels <channel1> [channel2] ...")
		fmt.Println("\nExample:")
		fmt.Println("  resolve-kick-channels paymoneywubby xqc")
		os.Exit(1)
	}

	channels := os.Args[1:]
	fmt.Printf("Resolving %d Kick channel(s)...\n\n", len(channels))

	client := &http.Client{Timeout: 10 * time.Second}
	kickCfg := config.KickConfig{Enabled: true}
	var failed []string

	for _, slug := range channels {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		info, err := kick.ResolveChannel(ctx, client, slug)
		cancel()

		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", slug, err))
			continue
		}
		kickCfg.Channels = append(kickCfg.Channels, config.KickChannelConfig{
			Slug:       info.Slug,
			ChatroomID: info.Chatroom.ID,
		})
	}

	if len(kickCfg.Channels) > 0 {
		fmt.Println("✓ Successfully resolved:")
		fmt.Println("---")
		for _, ch := range kickCfg.Channels {
			fmt.Printf("%s: %d\n", ch.Slug, ch.ChatroomID)
		}
		fmt.Println()
	}

	if len(failed) > 0 {
		fmt.Println("✗ Failed to resolve:")
		fmt.Println("---")
		for _, line := range failed {
			fmt.Println(line)
		}
		fmt.Println()
	}

	if len(kickCfg.Channels) == 0 {
		os.Exit(1)
	}

	snippet, err := yaml.Marshal(map[string]config.KickConfig{"kick": kickCfg})
	if err != nil {
		fmt.Fprintf(os.Stderr, "render config snippet: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Add this to your config.yaml:")
	fmt.Println("---")
	fmt.Print(string(snippet))
}
