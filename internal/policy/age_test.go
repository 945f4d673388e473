package policy

import (
	"context"
	"testing"
	"time"

	"github.com/ChrisB0-2/purge/internal/core"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestAgePolicy(t *testing.T) {
	p := NewAgePolicy(30)

	now := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	env := core.EnvSnapshot{Now: now}

	old := core.Candidate{Path: "/tmp/old", LastModified: timePtr(now.Add(-45 * 24 * time.Hour))}
	newer := core.Candidate{Path: "/tmp/new", LastModified: timePtr(now.Add(-10 * 24 * time.Hour))}

	d1 := p.Evaluate(context.Background(), old, env)
	if !d1.Allow || d1.Reason != "age_ok" {
		t.Fatalf("expected age_ok allow, got allow=%v reason=%s", d1.Allow, d1.Reason)
	}

	d2 := p.Evaluate(context.Background(), newer, env)
	if d2.Allow || d2.Reason != "too_new" {
		t.Fatalf("expected too_new deny, got allow=%v reason=%s", d2.Allow, d2.Reason)
	}
}

func TestAgePolicy_ExactBoundaryAllows(t *testing.T) {
	p := NewAgePolicy(1)
	now := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)

	c := core.Candidate{Path: "/tmp/x", LastModified: timePtr(now.Add(-24 * time.Hour))}
	if d := p.Evaluate(context.Background(), c, core.EnvSnapshot{Now: now}); !d.Allow {
		t.Fatalf("expected file exactly min age old to pass, got %s", d.Reason)
	}
}

func TestAgePolicy_MissingTimestampAllows(t *testing.T) {
	p := NewAgePolicy(365)

	d := p.Evaluate(context.Background(), core.Candidate{Path: "/tmp/x"}, core.EnvSnapshot{Now: time.Now()})
	if !d.Allow || d.Reason != "age_unknown" {
		t.Fatalf("expected age_unknown allow, got allow=%v reason=%s", d.Allow, d.Reason)
	}
}

func TestAgePolicy_FutureTimestampDenies(t *testing.T) {
	p := NewAgePolicy(1)
	now := time.Now()

	c := core.Candidate{Path: "/tmp/x", LastModified: timePtr(now.Add(time.Hour))}
	if d := p.Evaluate(context.Background(), c, core.EnvSnapshot{Now: now}); d.Allow {
		t.Fatal("expected file modified in the future to be treated as too new")
	}
}
