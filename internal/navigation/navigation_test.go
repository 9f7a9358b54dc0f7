package navigation

import (
	"testing"

	"github.com/flemzord/robobrain/internal/reply"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		resolver *Resolver
		out      reply.Output
		wantNav  bool
		wantGoal *Goal
	}{
		{
			name:     "navigation with location",
			resolver: NewResolver(),
			out:      reply.Output{Intent: reply.IntentNavigation, Location: "ห้องสมุด"},
			wantNav:  true,
			wantGoal: &Goal{TargetLocation: "ห้องสมุด", Priority: "normal"},
		},
		{
			name:     "navigation without location",
			resolver: NewResolver(),
			out:      reply.Output{Intent: reply.IntentNavigation},
		},
		{
			name:     "navigation with blank location",
			resolver: NewResolver(),
			out:      reply.Output{Intent: reply.IntentNavigation, Location: "   "},
		},
		{
			name:     "conversation with location",
			resolver: NewResolver(),
			out:      reply.Output{Intent: reply.IntentConversation, Location: "Library"},
		},
		{
			name:     "clarification",
			resolver: NewResolver(),
			out:      reply.Output{Intent: reply.IntentClarification},
		},
		{
			name:     "custom priority",
			resolver: &Resolver{RequireLocation: true, Priority: "high"},
			out:      reply.Output{Intent: reply.IntentNavigation, Location: "Gym"},
			wantNav:  true,
			wantGoal: &Goal{TargetLocation: "Gym", Priority: "high"},
		},
		{
			name:     "empty priority falls back",
			resolver: &Resolver{RequireLocation: true},
			out:      reply.Output{Intent: reply.IntentNavigation, Location: "Gym"},
			wantNav:  true,
			wantGoal: &Goal{TargetLocation: "Gym", Priority: "normal"},
		},
		{
			name:     "known location case-insensitive",
			resolver: &Resolver{RequireLocation: true, KnownLocations: []string{"Library", "Cafeteria"}},
			out:      reply.Output{Intent: reply.IntentNavigation, Location: "library"},
			wantNav:  true,
			wantGoal: &Goal{TargetLocation: "library", Priority: "normal"},
		},
		{
			name:     "unknown location rejected",
			resolver: &Resolver{RequireLocation: true, KnownLocations: []string{"Library"}},
			out:      reply.Output{Intent: reply.IntentNavigation, Location: "Mars"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			nav, goal := tt.resolver.Resolve(tt.out)
			if nav != tt.wantNav {
				t.Fatalf("Resolve() nav = %v, want %v", nav, tt.wantNav)
			}
			switch {
			case tt.wantGoal == nil && goal != nil:
				t.Errorf("Resolve() goal = %+v, want nil", goal)
			case tt.wantGoal != nil && (goal == nil || *goal != *tt.wantGoal):
				t.Errorf("Resolve() goal = %+v, want %+v", goal, tt.wantGoal)
			}
		})
	}
}
