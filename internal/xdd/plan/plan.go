// Package plan implements the process-wide engine state: the
// Config/TargetSpec pair, target-directory expansion, the barrier-chain
// anchor, the run-level flags (abort/canceled/run_complete/
// run_time_expired), the heartbeat_flags word, and the errgroup that joins
// every target thread and support thread (Results, Heartbeat, Restart
// Monitor) into one run.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package plan

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/karrick/godirwalk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/buntdb"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/xdd-project/xdd/internal/xdd/heartbeat"
	"github.com/xdd-project/xdd/internal/xdd/iosvc"
	"github.com/xdd-project/xdd/internal/xdd/nlog"
	"github.com/xdd-project/xdd/internal/xdd/restartmon"
	"github.com/xdd-project/xdd/internal/xdd/results"
	"github.com/xdd-project/xdd/internal/xdd/runid"
	"github.com/xdd-project/xdd/internal/xdd/target"
	"github.com/xdd-project/xdd/internal/xdd/throttle"
	"github.com/xdd-project/xdd/internal/xdd/timestamp"
	"github.com/xdd-project/xdd/internal/xdd/xatomic"
	"github.com/xdd-project/xdd/internal/xdd/xbarrier"
	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RestartConfig is the -restart directive's parsed form.
type RestartConfig struct {
	Enable   bool
	DBPath   string // "" defaults to an in-memory index (no cross-run resume)
	FlatFile string
	Interval time.Duration
}

// Config is the narrow, already-parsed input a Plan is built from; argument
// parsing and paramfile loading themselves live in the (external) CLI
// layer, which only needs to construct this struct.
type Config struct {
	Targets []target.Spec

	Passes        int // global pass count the Results/Heartbeat threads drive by
	ResultsFormat string
	ResultsSink   func(string)

	EnableHeartbeat bool
	Heartbeat       heartbeat.Spec

	Restart RestartConfig

	// Lockstep configures zero or more master/slave target pairs per the
	// -lockstep directive. MasterIndex/SlaveIndex refer to positions in
	// Targets.
	Lockstep []throttle.Spec

	// MaxConcurrentOpens bounds how many targets may be mid target_init Open
	// at once (0 disables the bound).
	MaxConcurrentOpens int

	TimeLimit time.Duration

	IO iosvc.Capability

	// MetricsRegistry, when non-nil, gets an ambient set of Prometheus
	// collectors registered and fed from every Results pass, so an operator
	// can scrape a running xdd process.
	MetricsRegistry prometheus.Registerer
}

// heartbeat_flags bit values.
const (
	FlagActive uint64 = 1 << iota
	FlagHoldoff
	FlagExit
)

// Plan is the process-wide engine state: plan_init → start → wait → destroy.
type Plan struct {
	cfg Config
	reg *xbarrier.Registry

	resultsMgr *results.Manager
	hbMonitor  *heartbeat.Monitor
	restartMon *restartmon.Monitor
	restartDB  *buntdb.DB

	targets        []*target.Target
	lockstepCoords []*throttle.Lockstep

	canceled xatomic.Bool
	abort    xatomic.Bool

	runComplete    xatomic.Bool
	runTimeExpired xatomic.Bool
	heartbeatFlags xatomic.Bits
	holdoff        xatomic.Bool // mirrors the HOLDOFF bit for heartbeat.Spec's *xatomic.Bool seam

	id string
}

// ExpandTargetDir turns a directory into one target path per regular file
// it contains, sorted for determinism, per the -targetdir CLI directive.
// Uses godirwalk rather than filepath.Walk for its lower per-entry
// allocation cost on large directories.
func ExpandTargetDir(dir string) ([]string, error) {
	var paths []string
	err := godirwalk.Walk(dir, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			paths = append(paths, path)
			return nil
		},
	})
	if err != nil {
		return nil, xerrors.ConfigError(fmt.Sprintf("plan: expand targetdir %s: %v", dir, err))
	}
	sort.Strings(paths)
	return paths, nil
}

// SaveSeekList writes a pattern seek list to disk as JSON (the -seek save F
// directive), via jsoniter rather than encoding/json for the lower
// allocation overhead on large seek lists.
func SaveSeekList(path string, offsets []int64) error {
	data, err := json.Marshal(offsets)
	if err != nil {
		return xerrors.ConfigError(fmt.Sprintf("plan: marshal seek list: %v", err))
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadSeekList reads back a seek list saved by SaveSeekList (-seek load F).
func LoadSeekList(path string) ([]int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.ConfigError(fmt.Sprintf("plan: read seek list: %v", err))
	}
	var offsets []int64
	if err := json.Unmarshal(data, &offsets); err != nil {
		return nil, xerrors.ConfigError(fmt.Sprintf("plan: unmarshal seek list: %v", err))
	}
	return offsets, nil
}

// New performs plan_init: builds the barrier-chain registry and the Results
// Manager, and opens the restart index if configured. It does not yet open
// any target (that's Start's job).
func New(cfg Config) (*Plan, error) {
	if len(cfg.Targets) == 0 {
		return nil, xerrors.ConfigError("plan: no targets configured")
	}
	if cfg.IO == nil {
		return nil, xerrors.ConfigError("plan: no I/O capability configured")
	}

	p := &Plan{cfg: cfg, reg: xbarrier.NewRegistry(), id: runid.New()}
	p.resultsMgr = results.New(p.reg, len(cfg.Targets), cfg.ResultsFormat, cfg.ResultsSink)
	if cfg.MetricsRegistry != nil {
		p.resultsMgr.SetMetrics(results.NewMetrics(cfg.MetricsRegistry))
	}
	p.heartbeatFlags.Store(FlagActive)

	if cfg.Restart.Enable {
		dbPath := cfg.Restart.DBPath
		if dbPath == "" {
			dbPath = ":memory:"
		}
		db, err := restartmon.Open(dbPath)
		if err != nil {
			return nil, err
		}
		p.restartDB = db
	}

	return p, nil
}

// Start performs target_init for every configured target: opens each one,
// bounding concurrent opens by cfg.MaxConcurrentOpens if set, then wires the
// Heartbeat and Restart Monitor support threads against the live targets.
func (p *Plan) Start(ctx context.Context) error {
	var sem *semaphore.Weighted
	if p.cfg.MaxConcurrentOpens > 0 {
		sem = semaphore.NewWeighted(int64(p.cfg.MaxConcurrentOpens))
	}

	type lockstepAssignment struct {
		coord  *throttle.Lockstep
		master bool
	}
	lockstepFor := make(map[int]lockstepAssignment, 2*len(p.cfg.Lockstep))
	for idx, ls := range p.cfg.Lockstep {
		coord := throttle.New(p.reg, fmt.Sprintf("lockstep%d", idx), ls)
		p.lockstepCoords = append(p.lockstepCoords, coord)
		lockstepFor[ls.MasterIndex] = lockstepAssignment{coord: coord, master: true}
		lockstepFor[ls.SlaveIndex] = lockstepAssignment{coord: coord, master: false}
	}

	targets := make([]*target.Target, len(p.cfg.Targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range p.cfg.Targets {
		i, spec := i, spec
		spec.OpenSem = sem
		if la, ok := lockstepFor[i]; ok {
			spec.Lockstep = la.coord
			spec.LockstepMaster = la.master
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			tg, err := target.New(spec, p.cfg.IO, &p.canceled, p.resultsMgr)
			if err != nil {
				return err
			}
			targets[i] = tg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return xerrors.InitError(err)
	}
	p.targets = targets

	if p.restartDB != nil {
		sources := make([]restartmon.Source, len(targets))
		for i, tg := range targets {
			sources[i] = tg
		}
		p.restartMon = restartmon.New(p.restartDB, p.cfg.Restart.Interval, p.cfg.Restart.FlatFile, sources)
	}

	if p.cfg.EnableHeartbeat {
		sources := make([]heartbeat.Source, len(targets))
		for i, tg := range targets {
			sources[i] = tg
		}
		spec := p.cfg.Heartbeat
		spec.Holdoff = &p.holdoff
		p.hbMonitor = heartbeat.New(spec, sources)
	}

	return nil
}

// Targets returns the live targets built by Start, for a caller that needs
// to drive CLI-level reporting (e.g. a final summary) after Wait returns.
func (p *Plan) Targets() []*target.Target { return p.targets }

// Wait runs every target thread plus the Results/Heartbeat/Restart Monitor
// support threads to completion, joining them the way a run finishes. The
// first error from any thread cancels the rest via the shared errgroup
// context.
func (p *Plan) Wait(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	passes := p.cfg.Passes
	if passes <= 0 {
		passes = 1
	}

	if p.cfg.TimeLimit > 0 {
		timer := time.AfterFunc(p.cfg.TimeLimit, func() {
			p.runTimeExpired.Store(true)
			p.Cancel()
		})
		defer timer.Stop()
	}

	for _, tg := range p.targets {
		tg := tg
		g.Go(func() error {
			defer func() {
				if err := tg.Close(); err != nil {
					nlog.Warningf("plan %s: close target %d: %v", p.id, tg.TargetIndex(), err)
				}
			}()
			return tg.Run(gctx)
		})
	}

	g.Go(func() error {
		for pass := 1; pass <= passes; pass++ {
			if err := p.resultsMgr.RunPass(gctx, pass, 0, 0); err != nil {
				return err
			}
		}
		return p.resultsMgr.Cleanup(gctx)
	})

	if p.hbMonitor != nil {
		g.Go(func() error { return runSupportThread(gctx, p.hbMonitor.Run) })
	}
	if p.restartMon != nil {
		g.Go(func() error { return runSupportThread(gctx, p.restartMon.Run) })
	}

	err := g.Wait()
	for _, c := range p.lockstepCoords {
		c.Close()
	}
	p.runComplete.Store(err == nil)
	p.heartbeatFlags.Set(FlagExit)
	if err != nil {
		nlog.Errorf("plan %s: run ended with error: %v", p.id, err)
	}
	return err
}

// runSupportThread adapts a ctx-driven ticker loop (Heartbeat/RestartMonitor
// Run) into the errgroup: its own context cancellation is the normal exit
// path for a support thread, not a run failure.
func runSupportThread(ctx context.Context, run func(context.Context) error) error {
	err := run(ctx)
	if err == context.Canceled || err == context.DeadlineExceeded {
		return nil
	}
	return err
}

// Destroy releases every barrier and closes the restart index, asserting no
// barrier leaked past its owning thread's cleanup.
func (p *Plan) Destroy() error {
	var first error
	if p.restartDB != nil {
		if err := p.restartDB.Close(); err != nil && first == nil {
			first = err
		}
	}
	if err := p.reg.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// Cancel sets the SIGINT-level cancellation flag.
func (p *Plan) Cancel() { p.canceled.Store(true) }

// Abort sets the fatal abort flag, distinct from Cancel's graceful stop.
func (p *Plan) Abort() { p.abort.Store(true) }

// SetHoldoff toggles the heartbeat_flags HOLDOFF bit, an optional
// Results-driven suppression of heartbeat output, and the Bool view the
// Heartbeat Monitor actually polls.
func (p *Plan) SetHoldoff(on bool) {
	if on {
		p.heartbeatFlags.Set(FlagHoldoff)
	} else {
		p.heartbeatFlags.Clear(FlagHoldoff)
	}
	p.holdoff.Store(on)
}

func (p *Plan) RunComplete() bool    { return p.runComplete.Load() }
func (p *Plan) RunTimeExpired() bool { return p.runTimeExpired.Load() }
func (p *Plan) Canceled() bool       { return p.canceled.Load() }
func (p *Plan) Aborted() bool        { return p.abort.Load() }

// DumpTimestamps writes each target's binary trace (and, if requested, a
// CSV) once the run has completed, per the -timestamp {output F|dump F}
// directive.
func DumpTimestamps(targets []*target.Target, prefix string, csvMode timestamp.CSVMode, writeCSV bool) error {
	for _, tg := range targets {
		ring := tg.Timestamp()
		if ring == nil || !ring.Enabled() {
			continue
		}
		if err := dumpOne(tg, ring, prefix, csvMode, writeCSV); err != nil {
			return err
		}
	}
	return nil
}

func dumpOne(tg *target.Target, ring *timestamp.Ring, prefix string, csvMode timestamp.CSVMode, writeCSV bool) error {
	bf, err := os.Create(timestamp.BinaryName(prefix, tg.TargetIndex()))
	if err != nil {
		return xerrors.IOError(tg.TargetIndex(), -1, -1, 0, err)
	}
	hdr := timestamp.Header{
		TargetThreadID: int64(tg.TargetIndex()),
		BlockSize:      tg.BlockSizeBytes(),
		ID:             runid.New(),
		Date:           time.Now().Format(time.RFC3339),
	}
	werr := ring.WriteBinary(bf, hdr)
	cerr := bf.Close()
	if werr != nil {
		return werr
	}
	if cerr != nil {
		return xerrors.IOError(tg.TargetIndex(), -1, -1, 0, cerr)
	}

	if !writeCSV {
		return nil
	}
	cf, err := os.Create(timestamp.CSVName(prefix, tg.TargetIndex()))
	if err != nil {
		return xerrors.IOError(tg.TargetIndex(), -1, -1, 0, err)
	}
	werr = ring.WriteCSV(cf, csvMode)
	cerr = cf.Close()
	if werr != nil {
		return werr
	}
	if cerr != nil {
		return xerrors.IOError(tg.TargetIndex(), -1, -1, 0, cerr)
	}
	return nil
}

// TargetPaths returns the configured path of every target, useful for a
// CLI summary or a -restart resume pre-flight check.
func TargetPaths(specs []target.Spec) []string {
	out := make([]string, len(specs))
	for i, s := range specs {
		out[i] = s.Path
	}
	return out
}
