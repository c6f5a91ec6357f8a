package kafkaconsumer

import (
	"strings"
	"time"

	"github.com/mohammed-shakir/overture-extract/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	// DedupeSize bounds how many release versions are remembered.
	DedupeSize int
}

func FromConfig(c config.InvalidationCfg) Config {
	return Config{
		Brokers:          splitCSV(c.Brokers),
		Topic:            c.Topic,
		GroupID:          c.GroupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		// only the newest announcement matters
		InitialOffsetOldest: false,
		DedupeSize:          128,
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
