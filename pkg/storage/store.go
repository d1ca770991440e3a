// Package storage provides plan snapshot storage implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/HatiCode/shiftcast/pkg/coverage"
	"github.com/HatiCode/shiftcast/pkg/staffing"
)

// Day statuses recorded in a DayPlan.
const (
	StatusOptimal    = "optimal"
	StatusInfeasible = "infeasible"
	StatusTimeout    = "timeout"
	StatusFailed     = "failed"
)

// Settings records the inputs a plan was computed with.
type Settings struct {
	AHTSeconds      float64 `json:"ahtSeconds"`
	IntervalSeconds float64 `json:"intervalSeconds"`
	ServiceTarget   string  `json:"serviceTarget"`
	Shrinkage       float64 `json:"shrinkage"`
	MaxExtraServers int     `json:"maxExtraServers"`
	MaxInstances    int     `json:"maxInstances,omitempty"`
	Timezone        string  `json:"timezone"`
}

// DayPlan is the coverage outcome for one calendar day of a plan.
type DayPlan struct {
	// Date is formatted as YYYY-MM-DD in the plan's timezone.
	Date     string             `json:"date"`
	Status   string             `json:"status"`
	Error    string             `json:"error,omitempty"`
	Required []int              `json:"required"`
	Solution *coverage.Solution `json:"solution,omitempty"`
	// Incumbent holds the best counts found when the solver stopped early.
	Incumbent map[string]int `json:"incumbent,omitempty"`
}

// Snapshot is the result of one planning run for a site.
type Snapshot struct {
	Site         string                 `json:"site"`
	RunID        string                 `json:"runId"`
	GeneratedAt  time.Time              `json:"generatedAt"`
	Settings     Settings               `json:"settings"`
	Requirements []staffing.Requirement `json:"requirements"`
	Days         []DayPlan              `json:"days"`
	// Unreachable lists requirement indexes whose target could not be met
	// within the search bound.
	Unreachable []int `json:"unreachable,omitempty"`
}

// TotalShifts sums solved shift instances across days.
func (s Snapshot) TotalShifts() int {
	total := 0
	for _, d := range s.Days {
		if d.Solution != nil {
			total += d.Solution.Total
		}
	}
	return total
}

// Store keeps the latest snapshot per site.
type Store interface {
	Put(ctx context.Context, snapshot Snapshot) error
	GetLatest(ctx context.Context, site string) (Snapshot, bool, error)
}

// Lister is implemented by stores that can enumerate the sites they hold.
// Sites are returned sorted.
type Lister interface {
	Sites(ctx context.Context) ([]string, error)
}

// validateSite accepts names made of letters, digits, hyphens and
// underscores; they become part of storage keys.
func validateSite(site string) error {
	if site == "" {
		return errors.New("snapshot site cannot be empty")
	}
	for _, c := range site {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '-' || c == '_') {
			return fmt.Errorf("invalid site name %q: only alphanumeric, hyphens, and underscores allowed", site)
		}
	}
	return nil
}
