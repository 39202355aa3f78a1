package telemetry

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/stat"
)

// BookmarkType identifies the type of bookmark.
type BookmarkType string

const (
	BookmarkSolverBreakthrough BookmarkType = "solver_breakthrough"
	BookmarkFuelStarved        BookmarkType = "fuel_starved"
	BookmarkFuelCrash          BookmarkType = "fuel_crash"
	BookmarkDamageSpike        BookmarkType = "damage_spike"
	BookmarkStableFlight       BookmarkType = "stable_flight"
)

// Bookmark represents an automatically triggered bookmark.
type Bookmark struct {
	Type        BookmarkType `csv:"type"`
	Step        int          `csv:"step"`
	Description string       `csv:"description"`
}

// LogBookmark logs the bookmark using slog.
func (b Bookmark) LogBookmark() {
	slog.Info("bookmark",
		"type", string(b.Type),
		"step", b.Step,
		"description", b.Description,
	)
}

// BookmarkDetector detects notable windows in a run.
type BookmarkDetector struct {
	// Rolling history (circular buffer)
	history     []WindowStats
	historySize int
	historyIdx  int
	historyFull bool

	recentFuelPeak     float64
	starved            bool // last window was starved
	stableWindowsCount int
}

// NewBookmarkDetector creates a detector with the given history size.
func NewBookmarkDetector(historySize int) *BookmarkDetector {
	if historySize < 5 {
		historySize = 5 // minimum for stable flight detection
	}
	return &BookmarkDetector{
		history:     make([]WindowStats, historySize),
		historySize: historySize,
	}
}

// Check analyzes the latest stats and returns any triggered bookmarks.
func (bd *BookmarkDetector) Check(stats WindowStats) []Bookmark {
	var bookmarks []Bookmark

	if bd.historyFull || bd.historyIdx > 0 {
		for _, check := range []func(WindowStats) *Bookmark{
			bd.checkSolverBreakthrough,
			bd.checkFuelCrash,
			bd.checkDamageSpike,
			bd.checkStableFlight,
		} {
			if b := check(stats); b != nil {
				bookmarks = append(bookmarks, *b)
			}
		}
	}
	// Starvation is an edge, reported once when it begins.
	if b := bd.checkFuelStarved(stats); b != nil {
		bookmarks = append(bookmarks, *b)
	}

	bd.addToHistory(stats)
	if stats.FuelLeft > bd.recentFuelPeak {
		bd.recentFuelPeak = stats.FuelLeft
	}

	return bookmarks
}

func (bd *BookmarkDetector) addToHistory(stats WindowStats) {
	bd.history[bd.historyIdx] = stats
	bd.historyIdx = (bd.historyIdx + 1) % bd.historySize
	if bd.historyIdx == 0 {
		bd.historyFull = true
	}
}

func (bd *BookmarkDetector) getHistory() []WindowStats {
	if bd.historyFull {
		return bd.history
	}
	return bd.history[:bd.historyIdx]
}

// checkSolverBreakthrough fires when the mean solver score falls below half
// the rolling average.
func (bd *BookmarkDetector) checkSolverBreakthrough(stats WindowStats) *Bookmark {
	if stats.Scores.Count == 0 {
		return nil
	}
	var scores []float64
	for _, h := range bd.getHistory() {
		if h.Scores.Count > 0 {
			scores = append(scores, h.ScoreMean)
		}
	}
	if len(scores) == 0 {
		return nil
	}
	avg := stat.Mean(scores, nil)
	if avg <= 0 || stats.ScoreMean >= avg*0.5 {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkSolverBreakthrough,
		Step:        stats.WindowEndStep,
		Description: fmt.Sprintf("mean score %.4f vs rolling avg %.4f", stats.ScoreMean, avg),
	}
}

// checkFuelStarved fires on the first window where most burns ran throttled.
func (bd *BookmarkDetector) checkFuelStarved(stats WindowStats) *Bookmark {
	window := stats.WindowEndStep - stats.WindowStartStep
	starved := window > 0 && stats.StarvedSteps*2 > window
	defer func() { bd.starved = starved }()
	if !starved || bd.starved {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkFuelStarved,
		Step:        stats.WindowEndStep,
		Description: fmt.Sprintf("%d of %d steps throttled, mean throttle %.2f", stats.StarvedSteps, window, stats.MeanThrottle),
	}
}

// checkFuelCrash fires when fuel drops more than 30% from the recent peak in
// one window.
func (bd *BookmarkDetector) checkFuelCrash(stats WindowStats) *Bookmark {
	hist := bd.getHistory()
	if len(hist) == 0 || bd.recentFuelPeak <= 0 {
		return nil
	}
	prev := bd.history[(bd.historyIdx-1+bd.historySize)%bd.historySize]
	if prev.FuelLeft < bd.recentFuelPeak*0.7 || stats.FuelLeft >= bd.recentFuelPeak*0.7 {
		return nil
	}
	dropPct := (bd.recentFuelPeak - stats.FuelLeft) / bd.recentFuelPeak * 100
	return &Bookmark{
		Type:        BookmarkFuelCrash,
		Step:        stats.WindowEndStep,
		Description: fmt.Sprintf("fuel dropped %.0f%% from peak %.1f to %.1f", dropPct, bd.recentFuelPeak, stats.FuelLeft),
	}
}

// checkDamageSpike fires when more parts were destroyed than in any window of
// the history, and at least two.
func (bd *BookmarkDetector) checkDamageSpike(stats WindowStats) *Bookmark {
	if stats.PartsDestroyed < 2 {
		return nil
	}
	for _, h := range bd.getHistory() {
		if h.PartsDestroyed >= stats.PartsDestroyed {
			return nil
		}
	}
	return &Bookmark{
		Type:        BookmarkDamageSpike,
		Step:        stats.WindowEndStep,
		Description: fmt.Sprintf("%d parts destroyed in one window", stats.PartsDestroyed),
	}
}

// checkStableFlight fires once after five windows with no damage, no
// starvation and a steady solver score.
func (bd *BookmarkDetector) checkStableFlight(stats WindowStats) *Bookmark {
	if stats.PartsDestroyed > 0 || stats.StarvedSteps > 0 || stats.Scores.Count == 0 {
		bd.stableWindowsCount = 0
		return nil
	}

	hist := bd.getHistory()
	if len(hist) < 4 {
		return nil
	}
	scores := []float64{stats.ScoreMean}
	for _, h := range hist {
		scores = append(scores, h.ScoreMean)
	}
	mean, std := stat.MeanStdDev(scores, nil)
	if mean > 0 && std/mean > 0.1 {
		bd.stableWindowsCount = 0
		return nil
	}

	bd.stableWindowsCount++
	if bd.stableWindowsCount != 5 {
		return nil
	}
	return &Bookmark{
		Type:        BookmarkStableFlight,
		Step:        stats.WindowEndStep,
		Description: fmt.Sprintf("steady flight, score mean %.4f", mean),
	}
}
