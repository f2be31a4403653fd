// testserver starts a skillengine API server with demo skills and an
// in-memory history for manual and end-to-end testing.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/Feaskye/SkyeAI-sub001/internal/api"
	"github.com/Feaskye/SkyeAI-sub001/internal/engine"
	"github.com/Feaskye/SkyeAI-sub001/internal/model"
	"github.com/Feaskye/SkyeAI-sub001/internal/service"
	"github.com/Feaskye/SkyeAI-sub001/internal/store"
	"github.com/Feaskye/SkyeAI-sub001/internal/tool"
)

// demoSkill pairs a skill definition with its body.
type demoSkill struct {
	skill model.Skill
	body  engine.Body
}

func demoSkills() []demoSkill {
	return []demoSkill{
		{
			skill: model.Skill{Name: "echo", Description: "returns its parameters"},
			body: func(_ context.Context, params map[string]any) (map[string]any, error) {
				return map[string]any{"echo": params}, nil
			},
		},
		{
			skill: model.Skill{Name: "sleep", Description: "sleeps for params.ms milliseconds"},
			body: func(ctx context.Context, params map[string]any) (map[string]any, error) {
				ms, _ := params["ms"].(float64)
				select {
				case <-time.After(time.Duration(ms) * time.Millisecond):
					return map[string]any{"slept_ms": ms}, nil
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			},
		},
		{
			skill: model.Skill{Name: "fail", Description: "always fails"},
			body: func(context.Context, map[string]any) (map[string]any, error) {
				return nil, errors.New("invalid input: demo failure")
			},
		},
	}
}

func main() {
	addr := ":8080"
	if v := os.Getenv("SKILLS_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	svc := service.New(service.Options{
		Executor: engine.Config{Timeout: 5 * time.Second},
		Logger:   logger,
		History:  db,
	})
	defer svc.Shutdown(5 * time.Second)

	for _, d := range demoSkills() {
		skill, err := svc.RegisterSkill(&d.skill)
		if err != nil {
			log.Fatalf("register %s: %v", d.skill.Name, err)
		}
		if err := svc.BindHandler(skill.ID, d.body); err != nil {
			log.Fatalf("bind %s: %v", d.skill.Name, err)
		}
	}

	// Every catalogue entry answers in-process; no tool endpoints are needed.
	tools := tool.NewAdapter(svc, tool.NewRouter(tool.EchoInvoker), tool.Config{}, logger)
	if _, err := tools.LoadDefaultTools(); err != nil {
		log.Fatalf("load tools: %v", err)
	}

	srv := api.NewServer(addr, svc, tools, logger, nil)

	logger.Info("testserver: starting", "addr", addr)
	if err := srv.Run(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
