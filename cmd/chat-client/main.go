// Command chat-client is a terminal client for the chat service. It
// signs in (or self-signs a development token), joins a channel, prints
// the stream, and reads outgoing messages from stdin.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"chat-service/internal/auth"
	"chat-service/internal/models"
	"chat-service/pkg/session"
)

type printHandler struct {
	session.NopHandler
}

func (printHandler) OnStateChange(state session.State) {
	fmt.Printf("-- %s\n", state)
}

func (printHandler) OnHistory(messages []models.Message) {
	for _, msg := range messages {
		printMessage(msg)
	}
}

func (printHandler) OnMessage(msg models.Message) {
	printMessage(msg)
}

func (printHandler) OnTyping(_, username string) {
	fmt.Printf("-- %s is typing...\n", username)
}

func (printHandler) OnPresence(onlineCount int) {
	fmt.Printf("-- %d online\n", onlineCount)
}

func (printHandler) OnError(code, message string) {
	fmt.Printf("-- error [%s]: %s\n", code, message)
}

func printMessage(msg models.Message) {
	fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04:05"), msg.Username, msg.Content)
}

func main() {
	var (
		serverURL = flag.String("server", "ws://localhost:8080/ws", "WebSocket endpoint")
		apiURL    = flag.String("api", "http://localhost:8080", "HTTP API base URL")
		channel   = flag.String("channel", "", "channel to join (default: directory default)")
		token     = flag.String("token", "", "bearer session token")
		username  = flag.String("username", "", "username for a self-signed dev token")
		devSecret = flag.String("dev-secret", "", "sign a dev token with this shared secret")
	)
	flag.Parse()

	ctx := context.Background()
	api := session.NewAPIClient(*apiURL)

	sessionToken := *token
	var identity models.Identity

	switch {
	case sessionToken != "":
		id, err := api.Me(ctx, sessionToken)
		if err != nil {
			log.Fatalf("token rejected: %v", err)
		}
		identity = id

	case *devSecret != "" && *username != "":
		identity = models.Identity{
			ID:          "dev-" + *username,
			Username:    *username,
			DisplayName: *username,
			AvatarColor: "#7c3aed",
			Role:        models.RoleMember,
		}
		signed, err := auth.SignToken([]byte(*devSecret), identity, 24*time.Hour)
		if err != nil {
			log.Fatalf("failed to sign dev token: %v", err)
		}
		sessionToken = signed

	default:
		log.Fatal("either -token or -username with -dev-secret is required")
	}

	channels, err := api.Channels(ctx)
	if err != nil {
		log.Fatalf("failed to list channels: %v", err)
	}
	if len(channels) == 0 {
		log.Fatal("chat is unavailable: empty channel directory")
	}

	defaultChannel := channels[0].ID
	for _, ch := range channels {
		if ch.Name == "general" {
			defaultChannel = ch.ID
			break
		}
	}
	target := *channel
	if target == "" {
		target = defaultChannel
	}

	sess := session.New(session.Config{
		ServerURL:        *serverURL,
		Token:            sessionToken,
		ChannelID:        target,
		DefaultChannelID: defaultChannel,
		Identity:         identity,
		Handler:          printHandler{},
	})
	sess.Start()
	defer sess.Close()

	fmt.Printf("joined as %s; /switch <channel>, /who, /quit\n", identity.Username)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case line == "/quit":
			return
		case line == "/who":
			fmt.Printf("-- %d online in %s\n", sess.OnlineCount(), sess.ChannelID())
		case strings.HasPrefix(line, "/switch "):
			sess.SwitchChannel(strings.TrimSpace(strings.TrimPrefix(line, "/switch ")))
		default:
			if !sess.Send(line) {
				fmt.Println("-- not connected, message dropped")
			}
		}
	}
}
