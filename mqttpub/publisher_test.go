package mqttpub

import (
	"context"
	"testing"

	"github.com/devskill-org/solar-fleet-sim/config"
	"github.com/devskill-org/solar-fleet-sim/state"
)

func TestNewPublisherTrimsTrailingSlashFromPrefix(t *testing.T) {
	p := NewPublisher(config.MQTTConfig{TopicPrefix: "solar/"}, state.NewStore(true), nil, nil)
	if p.prefix != "solar" {
		t.Fatalf("prefix = %q, want %q", p.prefix, "solar")
	}
}

func TestRunReturnsImmediatelyWhenDisabled(t *testing.T) {
	p := NewPublisher(config.MQTTConfig{Enabled: false}, state.NewStore(true), nil, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() on a disabled publisher should return nil immediately, got: %v", err)
	}
}

func TestRunReturnsImmediatelyWhenNoBrokerConfigured(t *testing.T) {
	p := NewPublisher(config.MQTTConfig{Enabled: true, BrokerHost: ""}, state.NewStore(true), nil, nil)
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run() with an empty broker host should return nil immediately, got: %v", err)
	}
}
