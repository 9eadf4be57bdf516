// ABOUTME: Setup subcommands for coven-inbox-server: init, seed and token
// ABOUTME: Writes a config with a random JWT secret, loads demo data and mints viewer tokens

package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"

	"github.com/2389/coven-inbox/internal/auth"
	"github.com/2389/coven-inbox/internal/config"
	"github.com/2389/coven-inbox/internal/store"
)

// defaultTokenTTL is how long minted tokens stay valid: 30 days.
const defaultTokenTTL = 30 * 24 * time.Hour

const configTemplate = `# coven-inbox configuration
# Generated by coven-inbox-server init

remote:
  url: "http://%[1]s"
  viewer_id: "%[2]s"
  token: "%[3]s"

sync:
  list_interval: "5s"
  timeline_interval: "4s"
  request_timeout: "10s"
  backoff:
    strategy: "constant"

server:
  http_addr: "%[1]s"
  database_path: "%[4]s"
  jwt_secret: "%[5]s"

logging:
  level: "info"
  format: "text"
`

// runInit writes a fresh config file containing a random JWT secret and a
// token for the chosen viewer.
func runInit(args []string) error {
	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	viewer := fs.String("viewer", "alice", "participant the client config acts as")
	addr := fs.String("addr", "127.0.0.1:8480", "HTTP listen address")
	force := fs.Bool("force", false, "overwrite an existing config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	configPath := config.Path()
	if _, err := os.Stat(configPath); err == nil && !*force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configPath)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("generating JWT secret: %w", err)
	}
	jwtSecret := base64.StdEncoding.EncodeToString(secretBytes)

	verifier, err := auth.NewJWTVerifier([]byte(jwtSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(*viewer, defaultTokenTTL)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	dbPath := filepath.Join(getDataPath(), "inbox.db")
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	content := fmt.Sprintf(configTemplate, *addr, *viewer, token, dbPath, jwtSecret)
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Printf("  ✓ Created config: %s\n", configPath)
	green.Printf("  ✓ Token for %s expires %s\n", *viewer, time.Now().Add(defaultTokenTTL).UTC().Format("Jan 02, 2006"))
	fmt.Println()
	yellow.Println("  Ready to go:")
	fmt.Println("    coven-inbox-server seed    # load demo conversations")
	fmt.Println("    coven-inbox-server serve   # start the API")
	fmt.Println("    coven-inbox                # open the inbox")
	fmt.Println()
	return nil
}

type seedMessage struct {
	sender string
	body   string
	ago    time.Duration
}

type seedConversation struct {
	id       string
	a, b     string
	messages []seedMessage
}

var seedParticipants = []store.Participant{
	{ID: "alice", DisplayName: "Alice"},
	{ID: "bob", DisplayName: "Bob"},
	{ID: "carol", DisplayName: "Carol", AvatarURL: "https://example.com/carol.png"},
	{ID: "dave", DisplayName: "Dave"},
	{ID: "erin", DisplayName: "Erin", Deactivated: true},
}

var seedConversations = []seedConversation{
	{id: "alice-bob", a: "alice", b: "bob", messages: []seedMessage{
		{"bob", "hey, are we still on for friday?", 3 * time.Hour},
		{"alice", "yes! 7pm works", 2*time.Hour + 50*time.Minute},
		{"bob", "great, I'll book the table", 2 * time.Hour},
	}},
	{id: "alice-carol", a: "alice", b: "carol", messages: []seedMessage{
		{"carol", "did you see the draft?", 30 * time.Minute},
		{"carol", "comments welcome before noon", 25 * time.Minute},
	}},
	{id: "alice-dave", a: "alice", b: "dave"},
	{id: "alice-erin", a: "erin", b: "alice", messages: []seedMessage{
		{"erin", "moving teams next week, keep in touch", 72 * time.Hour},
	}},
	{id: "bob-carol", a: "bob", b: "carol", messages: []seedMessage{
		{"bob", "lunch?", time.Hour},
	}},
}

// runSeed loads demo data. Entities that already exist are left alone.
func runSeed(ctx context.Context) error {
	cfg, _, err := loadServerConfig()
	if err != nil {
		return err
	}

	db, err := store.NewSQLiteStore(cfg.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	for _, p := range seedParticipants {
		if err := db.CreateParticipant(ctx, &p); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				gray.Printf("  - participant %s exists\n", p.ID)
				continue
			}
			return fmt.Errorf("creating participant %s: %w", p.ID, err)
		}
		green.Printf("  ✓ participant %s\n", p.ID)
	}

	now := time.Now().UTC()
	for _, sc := range seedConversations {
		conv := &store.Conversation{ID: sc.id, ParticipantIDs: [2]string{sc.a, sc.b}}
		if err := db.CreateConversation(ctx, conv); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				gray.Printf("  - conversation %s exists\n", sc.id)
				continue
			}
			return fmt.Errorf("creating conversation %s: %w", sc.id, err)
		}
		for _, m := range sc.messages {
			msg := &store.Message{
				ConversationID: sc.id,
				SenderID:       m.sender,
				Body:           m.body,
				CreatedAt:      now.Add(-m.ago),
			}
			if err := db.SaveMessage(ctx, msg); err != nil {
				return fmt.Errorf("saving message in %s: %w", sc.id, err)
			}
		}
		green.Printf("  ✓ conversation %s (%d messages)\n", sc.id, len(sc.messages))
	}
	return nil
}

// runToken mints a bearer token for an existing participant.
func runToken(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	viewer := fs.String("viewer", "", "participant ID to mint a token for")
	ttl := fs.Duration("ttl", defaultTokenTTL, "token lifetime (0 for no expiry)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *viewer == "" {
		return fmt.Errorf("--viewer flag is required")
	}

	cfg, _, err := loadServerConfig()
	if err != nil {
		return err
	}

	db, err := store.NewSQLiteStore(cfg.Server.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if _, err := db.GetParticipant(ctx, *viewer); err != nil {
		return fmt.Errorf("looking up %s: %w", *viewer, err)
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Server.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	token, err := verifier.Generate(*viewer, *ttl)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}

	fmt.Println(token)
	return nil
}
