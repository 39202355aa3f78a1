package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/shipyard/config"
)

// SolverRecord is one solver result row in solver.csv.
type SolverRecord struct {
	Step         int     `csv:"step"`
	Request      string  `csv:"request"`
	Generation   int     `csv:"generation"`
	Final        bool    `csv:"final"`
	Balance      float64 `csv:"balance"`
	Underpowered float64 `csv:"underpowered"`
	Inefficiency float64 `csv:"inefficiency"`
	Total        float64 `csv:"total"`
	Polished     float64 `csv:"polished"`
	Used         int     `csv:"used_thrusters"`
}

// ContainerRecord is one resource group row in containers.csv.
type ContainerRecord struct {
	Step      int     `csv:"step"`
	Resource  string  `csv:"resource"`
	Members   int     `csv:"members"`
	Destroyed int     `csv:"destroyed"`
	Current   float64 `csv:"current"`
	Max       float64 `csv:"max"`
	Usable    float64 `csv:"usable"`
}

// LinkRecord is one link row in links.csv.
type LinkRecord struct {
	Step   int     `csv:"step"`
	Kind   string  `csv:"kind"` // "sensor" or "synapse"
	From   int     `csv:"from"`
	To     int     `csv:"to"`
	Weight float64 `csv:"weight"`
}

// StateWriter persists ship state.
type StateWriter interface {
	SaveState(w io.Writer) error
}

// csvFile is a CSV output that writes its header once.
type csvFile struct {
	f             *os.File
	headerWritten bool
}

func (c *csvFile) write(records any, what string) error {
	if c == nil {
		return nil
	}
	if !c.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, c.f); err != nil {
			return fmt.Errorf("writing %s: %w", what, err)
		}
		c.headerWritten = true
		return nil
	}
	// Subsequent writes skip headers
	if err := gocsv.MarshalWithoutHeaders(records, c.f); err != nil {
		return fmt.Errorf("writing %s: %w", what, err)
	}
	return nil
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir string

	telemetry  *csvFile
	perf       *csvFile
	solver     *csvFile
	containers *csvFile
	links      *csvFile
	bookmarks  *csvFile
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled). Optional files are only
// created when enabled in cfg.
func NewOutputManager(dir string, cfg config.TelemetryConfig) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	files := []struct {
		name    string
		enabled bool
		dst     **csvFile
	}{
		{"telemetry.csv", true, &om.telemetry},
		{"perf.csv", true, &om.perf},
		{"bookmarks.csv", true, &om.bookmarks},
		{"solver.csv", cfg.SolverCSV, &om.solver},
		{"containers.csv", cfg.ContainerCSV, &om.containers},
		{"links.csv", cfg.LinkCSV, &om.links},
	}
	for _, file := range files {
		if !file.enabled {
			continue
		}
		f, err := os.Create(filepath.Join(dir, file.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", file.name, err)
		}
		*file.dst = &csvFile{f: f}
	}

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteState saves ship state as state.yaml.
func (om *OutputManager) WriteState(s StateWriter) error {
	if om == nil {
		return nil
	}
	path := filepath.Join(om.dir, "state.yaml")
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating state.yaml: %w", err)
	}
	if err := s.SaveState(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteTelemetry writes a window stats record to telemetry.csv.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	return om.telemetry.write([]WindowStats{stats}, "telemetry")
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int) error {
	if om == nil {
		return nil
	}
	return om.perf.write([]PerfRecord{stats.Record(windowEnd)}, "perf")
}

// WriteSolver writes solver records to solver.csv.
func (om *OutputManager) WriteSolver(records []SolverRecord) error {
	if om == nil || len(records) == 0 {
		return nil
	}
	return om.solver.write(records, "solver")
}

// WriteContainers writes resource group records to containers.csv.
func (om *OutputManager) WriteContainers(records []ContainerRecord) error {
	if om == nil || len(records) == 0 {
		return nil
	}
	return om.containers.write(records, "containers")
}

// WriteLinks writes link records to links.csv.
func (om *OutputManager) WriteLinks(records []LinkRecord) error {
	if om == nil || len(records) == 0 {
		return nil
	}
	return om.links.write(records, "links")
}

// WriteBookmark writes a bookmark to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	return om.bookmarks.write([]Bookmark{b}, "bookmark")
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, c := range []*csvFile{om.telemetry, om.perf, om.solver, om.containers, om.links, om.bookmarks} {
		if c == nil {
			continue
		}
		if err := c.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
