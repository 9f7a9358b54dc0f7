// Package navigation decides whether a reply should move the robot and
// builds the goal handed to the navigation stack.
package navigation

import (
	"log/slog"
	"strings"

	"github.com/flemzord/robobrain/internal/reply"
)

// DefaultPriority is attached to goals when none is configured.
const DefaultPriority = "normal"

// Goal is a target handed to the external navigation subsystem.
type Goal struct {
	TargetLocation string `json:"target_location"`
	Priority       string `json:"priority"`
}

// Resolver turns model output into an optional navigation goal.
type Resolver struct {
	// RequireLocation rejects navigation intents without a location.
	// Disabling it is only meaningful together with a robot-side default
	// destination; NewResolver enables it.
	RequireLocation bool
	Priority        string

	// KnownLocations, when non-empty, limits goals to mapped places.
	// Matching is case-insensitive.
	KnownLocations []string

	Logger *slog.Logger
}

// NewResolver returns a resolver with the default policy.
func NewResolver() *Resolver {
	return &Resolver{RequireLocation: true, Priority: DefaultPriority}
}

// Resolve applies a strict AND gate: the intent must be navigation and the
// location must be present. It returns the goal only when navigating.
func (r *Resolver) Resolve(out reply.Output) (bool, *Goal) {
	if out.Intent != reply.IntentNavigation {
		return false, nil
	}
	loc := strings.TrimSpace(out.Location)
	if loc == "" && r.RequireLocation {
		return false, nil
	}
	if loc != "" && !r.known(loc) {
		r.logger().Info("navigation target not in known locations", "location", loc)
		return false, nil
	}

	prio := r.Priority
	if prio == "" {
		prio = DefaultPriority
	}
	return true, &Goal{TargetLocation: loc, Priority: prio}
}

func (r *Resolver) known(loc string) bool {
	if len(r.KnownLocations) == 0 {
		return true
	}
	for _, k := range r.KnownLocations {
		if strings.EqualFold(strings.TrimSpace(k), loc) {
			return true
		}
	}
	return false
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
