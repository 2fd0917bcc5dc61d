package main

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/castlelab/studysync/internal/relayserver"
)

func main() {
	addr := os.Getenv("STUDYSYNC_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	journal, err := relayserver.BuildJournalFromDSN(os.Getenv("STUDYSYNC_JOURNAL_DSN"))
	if err != nil {
		log.Fatalf("failed to initialize event journal: %v", err)
	}
	defer journal.Close()

	server, err := relayserver.NewServer(relayserver.ServerConfig{
		Journal:      journal,
		Logger:       log.Default(),
		MaxBodyBytes: int64Env("STUDYSYNC_MAX_BODY_BYTES", 0),
		Replay:       boolEnv("STUDYSYNC_REPLAY", false),
		SendBuffer:   intEnv("STUDYSYNC_SEND_BUFFER", 0),
	})
	if err != nil {
		log.Fatalf("failed to initialize relay server: %v", err)
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Printf("studysync relay listening on %s", addr)
	if err := httpServer.ListenAndServe(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func intEnv(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func boolEnv(name string, fallback bool) bool {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %t", name, raw, fallback)
		return fallback
	}
	return value
}
