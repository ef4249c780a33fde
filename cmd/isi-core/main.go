// isi-core is the acquisition and analysis core process. It speaks the
// typed command/event schema over stdin/stdout as JSON lines: each input
// line is one command, each output line is either a reply or an event.
// The desktop shell owns everything else (windows, forms, process glue).
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/acquisition"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/analysis"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/appconfig"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/camera"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/catalog"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/config"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/framebus"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/ipc"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/monitoring"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/report"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/stimulus"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/synctracker"
	"github.com/Kim-Neuroscience-Lab/KimLabISI-sub006/internal/version"
)

var (
	configPath = flag.String("config", "config/isi.toml", "Host configuration file")
	devCamera  = flag.Bool("dev-camera", false, "Use the software-clock dev camera instead of a capture device")
	noListen   = flag.Bool("no-listen", false, "Disable the local report file server")
)

// assembly owns every component for the life of the process and passes
// explicit references into the pieces that need them. There is no global
// registry; if a component is not in here, nothing can reach it.
type assembly struct {
	cfg          *appconfig.Config
	store        *config.Store
	library      *stimulus.Library
	tracker      *synctracker.Tracker
	bus          *framebus.Bus
	driver       camera.Driver
	engine       *acquisition.Engine
	orchestrator *acquisition.Orchestrator
	pipeline     *analysis.Pipeline
	catalog      *catalog.Catalog
	dispatcher   *ipc.Dispatcher
	acqEvents    chan acquisition.Event
}

func buildAssembly(cfg *appconfig.Config) (*assembly, error) {
	store, err := config.Load(filepath.Join(cfg.DataRoot, "parameters.json"))
	if err != nil {
		return nil, fmt.Errorf("loading parameters: %w", err)
	}

	var driver camera.Driver
	if *devCamera {
		driver = camera.NewDevDriver()
	} else {
		driver = camera.NewDefaultDriver()
	}
	detectHardware(store, driver)

	library := stimulus.NewLibrary(stimulus.NewGenerator(stimulus.SelectBackend(cfg.GPUBackend)))
	tracker := synctracker.New(synctracker.DefaultWindow)
	bus := framebus.NewBus(8)

	snap := store.Snapshot()
	engine := acquisition.NewEngine(bus, tracker, library, snap.Monitor.FPS)
	acqEvents := make(chan acquisition.Event, 256)
	orchestrator := acquisition.NewOrchestrator(store, driver, engine, tracker, library,
		filepath.Join(cfg.DataRoot, "sessions"), acqEvents)

	cat, err := catalog.Open(filepath.Join(cfg.DataRoot, "catalog.db"))
	if err != nil {
		// Catalog is convenience indexing only; the filesystem session
		// remains authoritative, so run without it rather than refuse
		// to start.
		monitoring.Logf("isi-core: session catalog unavailable: %v", err)
		cat = nil
	}

	a := &assembly{
		cfg:          cfg,
		store:        store,
		library:      library,
		tracker:      tracker,
		bus:          bus,
		driver:       driver,
		engine:       engine,
		orchestrator: orchestrator,
		pipeline:     analysis.NewPipeline(),
		catalog:      cat,
		acqEvents:    acqEvents,
	}
	a.dispatcher = ipc.NewDispatcher(ipc.Deps{
		Store:        store,
		Library:      library,
		Tracker:      tracker,
		Bus:          bus,
		Orchestrator: orchestrator,
		Pipeline:     a.pipeline,
		Catalog:      cat,
		Renderer:     report.NewRenderer(),
		DataRoot:     cfg.DataRoot,
	})
	return a, nil
}

// detectHardware re-populates the volatile parameter groups from the
// attached devices. Values found here live only in memory; every save
// writes the sentinel defaults back to disk.
func detectHardware(store *config.Store, driver camera.Driver) {
	ids, err := driver.Enumerate()
	if err != nil || len(ids) == 0 {
		monitoring.Logf("isi-core: no camera detected at startup: %v", err)
	} else {
		caps, err := driver.Capabilities(ids[0])
		if err != nil {
			monitoring.Logf("isi-core: reading camera capabilities: %v", err)
		} else {
			patch := map[string]interface{}{
				"device_id": ids[0],
				"fps":       caps.MaxFPS,
			}
			if len(caps.Widths) > 0 {
				patch["width_px"] = float64(caps.Widths[len(caps.Widths)-1])
			}
			if len(caps.Heights) > 0 {
				patch["height_px"] = float64(caps.Heights[len(caps.Heights)-1])
			}
			if _, err := store.Update(config.GroupCamera, patch); err != nil {
				monitoring.Logf("isi-core: applying detected camera config: %v", err)
			}
		}
	}

	// Monitor geometry comes from the display layer when one is
	// attached; headless runs get a standard panel profile so the
	// generator has usable geometry from the first command.
	snap := store.Snapshot()
	if snap.Monitor.ResolutionWidthPx <= 0 {
		_, err := store.Update(config.GroupMonitor, map[string]interface{}{
			"resolution_width_px":  1920.0,
			"resolution_height_px": 1080.0,
			"width_cm":             53.0,
			"height_cm":            30.0,
			"viewing_distance_cm":  10.0,
			"lateral_angle_deg":    0.0,
			"tilt_angle_deg":       0.0,
			"refresh_rate_hz":      60.0,
			"fps":                  60.0,
		})
		if err != nil {
			monitoring.Logf("isi-core: applying monitor profile: %v", err)
		}
	}
}

// lineWriter serializes replies and events onto stdout, one JSON object
// per line. Stdout is shared by two goroutines; the mutex keeps lines
// whole.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newLineWriter() *lineWriter {
	return &lineWriter{enc: json.NewEncoder(os.Stdout)}
}

func (w *lineWriter) write(v interface{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(v); err != nil {
		monitoring.Logf("isi-core: writing output line: %v", err)
	}
}

func main() {
	flag.Parse()
	log.Printf("isi-core %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	cfg, err := appconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("isi-core: %v", err)
	}
	if err := os.MkdirAll(cfg.DataRoot, 0o755); err != nil {
		log.Fatalf("isi-core: creating data root: %v", err)
	}

	a, err := buildAssembly(cfg)
	if err != nil {
		log.Fatalf("isi-core: %v", err)
	}
	if a.catalog != nil {
		defer a.catalog.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("isi-core: shutting down")
		a.orchestrator.Cancel()
		cancel()
	}()

	out := newLineWriter()
	go a.dispatcher.PumpAcquisitionEvents(a.acqEvents)
	go func() {
		for e := range a.dispatcher.Events() {
			out.write(e)
		}
	}()

	if !*noListen && cfg.ListenAddr != "" {
		// Local file server over the data root so rendered reports and
		// map PNGs can be opened in a browser without digging through
		// the filesystem. Loopback debugging only.
		go func() {
			err := http.ListenAndServe(cfg.ListenAddr, http.FileServer(http.Dir(cfg.DataRoot)))
			if err != nil {
				monitoring.Logf("isi-core: report server: %v", err)
			}
		}()
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var cmd ipc.Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			out.write(ipc.Reply{OK: false, Code: "MalformedCommand", Error: err.Error()})
			continue
		}
		out.write(a.dispatcher.Dispatch(ctx, cmd))
		if ctx.Err() != nil {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("isi-core: reading commands: %v", err)
	}
}
