// Command feedctl drives the feed engine from a terminal: list posts,
// post, comment, like, and watch the leaderboard.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := (&cli{out: os.Stdout}).execute(ctx, nil)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
