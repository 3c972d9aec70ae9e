// Command client is a terminal chat client for a Roomcast server. It prints
// the room history on connect, streams broadcasts as they arrive, and sends
// each line typed on stdin as a message.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/gookit/color"

	"github.com/roomcast/roomcast/internal/chatclient"
	"github.com/roomcast/roomcast/internal/store"
)

func main() {
	serverURL := flag.String("server", "ws://localhost:8080/ws", "room server WebSocket URL")
	username := flag.String("username", "", "name shown next to your messages")
	flag.Parse()

	if strings.TrimSpace(*username) == "" {
		fmt.Fprintln(os.Stderr, "a -username is required")
		os.Exit(2)
	}

	client := chatclient.New(*serverURL, chatclient.Options{
		OnHistory: printHistory,
		OnMessage: printMessage,
		OnState:   printState,
		OnServerError: func(msg string) {
			color.Red.Printf("server rejected message: %s\n", msg)
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)
	defer client.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "/quit" {
			return
		}
		if err := client.Send(*username, line); err != nil {
			color.Yellow.Println("not connected; message not sent")
		}
	}
}

func printHistory(history []store.Message) {
	color.Cyan.Printf("--- %d messages in room ---\n", len(history))
	for _, msg := range history {
		printMessage(msg)
	}
}

func printMessage(msg store.Message) {
	color.Gray.Printf("[%s] ", msg.Timestamp.Local().Format("15:04:05"))
	color.Green.Printf("%s: ", msg.Username)
	fmt.Println(msg.Body)
}

func printState(state chatclient.State) {
	switch state {
	case chatclient.Connecting:
		color.Cyan.Println("connecting...")
	case chatclient.Connected:
		color.Green.Println("connected")
	case chatclient.Reconnecting:
		color.Yellow.Println("connection lost, reconnecting...")
	case chatclient.Disconnected:
		color.Red.Println("disconnected")
	}
}
