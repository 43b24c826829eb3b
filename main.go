package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/tabletalk-ai/server/internal/analysis/backend"
	"github.com/tabletalk-ai/server/internal/analysis/model"
	"github.com/tabletalk-ai/server/internal/analysis/repo"
	"github.com/tabletalk-ai/server/internal/analysis/session"
	pkgredis "github.com/tabletalk-ai/server/pkg/redis"
)

// AppConfig defines all configurable parameters for the analysis runner,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	// Infrastructure
	Redis  pkgredis.Config
	OpenAI backend.Config

	// Orchestrator configs
	Assistant model.AssistantConfig
	Poll      model.PollConfig
	Session   model.SessionConfig

	// Dataset for the demo run
	DatasetPath string `envconfig:"DATASET_PATH" default:"uploads/mock_data.csv"`

	// Optional session to resume instead of starting fresh
	SessionID string `envconfig:"SESSION_ID"`
}

func main() {
	fmt.Println("Testing analysis session orchestrator...")
	ctx := context.Background()
	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Load structured config from env
	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		log.Fatalf("Failed to process environment config: %v", err)
	}

	rdb, err := envCfg.Redis.New(ctx)
	if err != nil {
		log.Fatalf("Failed to initialise Redis client: %v", err)
	}
	defer rdb.Close()

	fmt.Println("Connected to Redis successfully")

	ttl, err := time.ParseDuration(envCfg.Session.TTL)
	if err != nil {
		log.Fatalf("Invalid SESSION_TTL '%s': %v", envCfg.Session.TTL, err)
	}

	store := repo.NewRedisSessionStore(rdb, ttl)
	oai := envCfg.OpenAI.New()
	orch, err := session.New(ctx, session.Config{
		Backend:   oai,
		Store:     store,
		Assistant: envCfg.Assistant,
		Poll:      envCfg.Poll,
		Session:   envCfg.Session,
	})
	if err != nil {
		log.Fatalf("Failed to build orchestrator: %v", err)
	}
	fmt.Printf("Using assistant: %s\n", orch.AssistantID())

	data, err := os.ReadFile(envCfg.DatasetPath)
	if err != nil {
		log.Fatalf("Failed to read dataset %s: %v", envCfg.DatasetPath, err)
	}

	state := model.NewSessionState()
	if envCfg.SessionID != "" {
		prev, err := store.LoadState(ctx, envCfg.SessionID)
		if err != nil {
			log.Printf("Warning: could not load session %s: %v", envCfg.SessionID, err)
		} else if prev == nil {
			log.Printf("Warning: no persisted session %s, starting fresh", envCfg.SessionID)
		} else {
			var evicted bool
			state, evicted = orch.Maintain(ctx, *prev)
			if evicted {
				fmt.Printf("Session %s went stale, starting over\n", state.SessionID)
			} else {
				fmt.Printf("Resumed session %s (thread %s, %d turns)\n",
					state.SessionID, state.ThreadID, len(state.History))
			}
		}
	}

	init := orch.InitializeSession(ctx, state, envCfg.DatasetPath, data)
	if init.Status != session.StatusSuccess {
		log.Fatalf("Failed to initialize session: %s", init.Error)
	}
	state = init.State
	fmt.Printf("Initialized session %s (thread %s, file %s)\n", state.SessionID, init.ThreadID, init.FileID)

	if info, err := oai.RetrieveFile(ctx, init.FileID); err == nil {
		fmt.Printf("Uploaded %s (%d bytes, purpose %s)\n", info.Filename, info.Size, info.Purpose)
	}

	testQueries := []struct {
		description string
		query       string
	}{
		{
			description: "Simple aggregate",
			query:       "What were total sales across the whole dataset?",
		},
		{
			description: "Follow-up using prior context",
			query:       "And how does that split by month?",
		},
		{
			description: "Reference to the previous result",
			query:       "Which of those months grew the fastest compared to its predecessor?",
		},
	}

	for i, test := range testQueries {
		fmt.Printf("\nTest %d: %s\n", i+1, test.description)
		fmt.Printf("Query: %q\n", test.query)
		fmt.Println("Processing...")

		res := orch.RunAnalysis(ctx, state, test.query)
		if res.Status != session.StatusSuccess {
			log.Fatalf("Turn %d failed (%s): %s", i+1, res.Kind, res.Error)
		}
		state = res.State

		fmt.Printf("Answer %d: %s\n", i+1, res.Response.FinalAnswer)
		for _, step := range res.Response.Steps {
			fmt.Printf("  - %s\n", step)
		}
		fmt.Println("────────────────────────────────────────────")

		// slight delay between turns to stay under backend rate limits
		time.Sleep(500 * time.Millisecond)
	}

	if history, err := store.LoadHistory(ctx, state.SessionID); err != nil {
		log.Printf("Warning: could not load persisted history: %v", err)
	} else {
		fmt.Printf("Session %s has %d persisted turns; rerun with SESSION_ID=%s to continue it\n",
			state.SessionID, len(history), state.SessionID)
	}

	fmt.Println("All analysis turns completed successfully")
}
