// Command xdd drives the engine's CLI surface: parses the directive flags
// into a plan.Config, runs the Plan to completion, and maps its outcome
// onto the process exit-code contract.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/xdd-project/xdd/internal/xdd/datapattern"
	"github.com/xdd-project/xdd/internal/xdd/e2e"
	"github.com/xdd-project/xdd/internal/xdd/heartbeat"
	"github.com/xdd-project/xdd/internal/xdd/iosvc"
	"github.com/xdd-project/xdd/internal/xdd/nlog"
	"github.com/xdd-project/xdd/internal/xdd/pattern"
	"github.com/xdd-project/xdd/internal/xdd/plan"
	"github.com/xdd-project/xdd/internal/xdd/results"
	"github.com/xdd-project/xdd/internal/xdd/target"
	"github.com/xdd-project/xdd/internal/xdd/throttle"
	"github.com/xdd-project/xdd/internal/xdd/timestamp"
	"github.com/xdd-project/xdd/internal/xdd/worker"
	"github.com/xdd-project/xdd/internal/xdd/xerrors"
)

func main() {
	app := &cli.App{
		Name:  "xdd",
		Usage: "drive storage/network endpoints at controlled rates and report precise latency/throughput",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "target", Usage: "a target path; repeatable"},
			&cli.StringFlag{Name: "targetdir", Usage: "expand every regular file in DIR into one target"},
			&cli.StringFlag{Name: "op", Value: "write", Usage: "read|write|noop"},
			&cli.Float64Flag{Name: "rwratio", Usage: "mixed-ratio override: -1 noop, 0 write, 1 read, fraction for mixed"},
			&cli.Int64Flag{Name: "reqsize", Value: 1, Usage: "request size in blocks"},
			&cli.Int64Flag{Name: "blocksize", Value: 1024, Usage: "block size in bytes"},
			&cli.Int64Flag{Name: "numreqs", Usage: "number of requests per pass"},
			&cli.Int64Flag{Name: "bytes", Usage: "total bytes per pass (alternative to -numreqs)"},
			&cli.Int64Flag{Name: "kbytes", Usage: "total KiB per pass"},
			&cli.Int64Flag{Name: "mbytes", Usage: "total MiB per pass"},
			&cli.IntFlag{Name: "queuedepth", Value: 1, Usage: "number of worker goroutines per target"},
			&cli.IntFlag{Name: "passes", Value: 1},
			&cli.StringFlag{Name: "seek", Value: "sequential", Usage: "random|sequential|stagger N|interleave N|range N|seed N|save F|load F|none"},
			&cli.Int64Flag{Name: "startoffset"},
			&cli.Int64Flag{Name: "passoffset"},
			&cli.DurationFlag{Name: "startdelay"},
			&cli.DurationFlag{Name: "timelimit"},
			&cli.StringFlag{Name: "throttle", Usage: "{ops|bw|delay} V, e.g. \"bw 100\" for 100 MB/s"},
			&cli.Float64Flag{Name: "variance", Usage: "bandwidth throttle jitter fraction"},
			&cli.BoolFlag{Name: "dio"},
			&cli.BoolFlag{Name: "sgio"},
			&cli.BoolFlag{Name: "create"},
			&cli.BoolFlag{Name: "recreate"},
			&cli.BoolFlag{Name: "reopen"},
			&cli.BoolFlag{Name: "createnewfiles"},
			&cli.BoolFlag{Name: "syncwrite"},
			&cli.IntFlag{Name: "flushwrite"},
			&cli.StringFlag{Name: "verify", Usage: "contents|location"},
			&cli.StringFlag{Name: "ordering", Value: "none", Usage: "serial|loose|none"},
			&cli.BoolFlag{Name: "serialordering"},
			&cli.BoolFlag{Name: "looseordering"},
			&cli.IntFlag{Name: "retrycount"},
			&cli.BoolFlag{Name: "stoponerror"},
			&cli.StringFlag{Name: "datapattern", Usage: "a single fill byte, as a char or 0xHH"},

			&cli.BoolFlag{Name: "nulltarget"},

			&cli.StringFlag{Name: "endtoend", Usage: "issource|isdestination; hosts come from -e2e-source-hosts, the listen address from -e2e-listen"},
			&cli.StringFlag{Name: "e2e-source-hosts", Usage: "comma-separated host[:port[/count]] list for -endtoend issource"},
			&cli.StringFlag{Name: "e2e-listen", Usage: "HOST:PORT to bind for -endtoend isdestination"},

			&cli.StringFlag{Name: "timestamp", Usage: "on|off|wrap|oneshot|size N|triggertime D|triggerop N"},
			&cli.StringFlag{Name: "timestamp-output", Usage: "trace file prefix for -timestamp dump"},
			&cli.BoolFlag{Name: "timestamp-csv"},
			&cli.StringFlag{Name: "timestamp-csv-mode", Value: "summary", Usage: "summary|detailed"},

			&cli.StringFlag{Name: "heartbeat", Usage: "N[s] plus +FIELD tokens, e.g. \"2s +OPS +BW\""},
			&cli.BoolFlag{Name: "heartbeat-lf", Usage: "emit newline instead of \\r between heartbeat lines"},
			&cli.BoolFlag{Name: "heartbeat-ignorerestart"},
			&cli.BoolFlag{Name: "heartbeat-hoststats"},

			&cli.StringFlag{Name: "restart", Usage: "enable|file F|freq S"},

			&cli.StringSliceFlag{Name: "lockstep", Usage: "\"M S WHEN HOWLONG WHAT HOWMUCH COMPLETION\"; repeatable"},

			&cli.StringFlag{Name: "outputformat", Value: results.DefaultFormat, Usage: "results.Render directive string"},

			&cli.IntFlag{Name: "maxconcurrentopens", Usage: "bound concurrent target_init Open calls; 0 disables"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "if set, serve Prometheus /metrics on this address for the run's duration"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		kind := xerrors.KindInit
		if xe, ok := err.(*xerrors.Error); ok {
			kind = xe.Kind
		}
		nlog.Errorf("xdd: %v", err)
		os.Exit(kind.ExitCode())
	}
}

func run(c *cli.Context) error {
	targets, err := resolveTargetPaths(c)
	if err != nil {
		return err
	}

	seekSpec, err := parseSeek(c.String("seek"))
	if err != nil {
		return err
	}
	if seekSpec.saveFile != "" || seekSpec.loadFile != "" {
		// -seek save writes each target's start offset (below, once the
		// target specs are built); -seek load reads such a file back and
		// uses its first value as the seed. The planned entry list itself
		// is neither saved nor replayed.
		if seekSpec.loadFile != "" {
			offsets, err := plan.LoadSeekList(seekSpec.loadFile)
			if err != nil {
				return err
			}
			if len(offsets) > 0 {
				seekSpec.seed = offsets[0]
			}
		}
	}

	ts, err := parseTimestamp(c.String("timestamp"))
	if err != nil {
		return err
	}

	op := c.String("op")
	rwratio := c.Float64("rwratio")
	if !c.IsSet("rwratio") {
		switch op {
		case "read":
			rwratio = 1
		case "noop":
			rwratio = -1
		default:
			rwratio = 0
		}
	}

	throttle, err := parseThrottle(c.String("throttle"), c.Float64("variance"))
	if err != nil {
		return err
	}

	ordering := worker.OrderNone
	switch {
	case c.Bool("serialordering"), c.String("ordering") == "serial":
		ordering = worker.OrderSerial
	case c.Bool("looseordering"), c.String("ordering") == "loose":
		ordering = worker.OrderLoose
	}

	verify := worker.VerifyNone
	switch c.String("verify") {
	case "contents":
		verify = worker.VerifyContents
	case "location":
		verify = worker.VerifyLocation
	}

	filler, err := parseDataPattern(c.String("datapattern"))
	if err != nil {
		return err
	}

	opts := target.Options(0)
	if c.Bool("dio") {
		opts |= target.OptDirectIO
	}
	if c.Bool("sgio") {
		opts |= target.OptSGIO
	}
	if c.Bool("create") {
		opts |= target.OptCreate
	}
	if c.Bool("recreate") {
		opts |= target.OptRecreate
	}
	if c.Bool("reopen") {
		opts |= target.OptReopen
	}
	if c.Bool("createnewfiles") {
		opts |= target.OptCreateNewFiles
	}
	if c.Bool("syncwrite") {
		opts |= target.OptSyncWrite
	}
	if c.Bool("nulltarget") {
		opts |= target.OptNullTarget
	}

	var e2eEndpoints []e2e.Endpoint
	var e2eListen string
	switch c.String("endtoend") {
	case "issource":
		opts |= target.OptE2ESource
		e2eEndpoints, err = parseE2EHosts(c.String("e2e-source-hosts"), c.Int("queuedepth"))
		if err != nil {
			return err
		}
	case "isdestination":
		opts |= target.OptE2EDestination
		e2eListen = c.String("e2e-listen")
	}

	specs := make([]target.Spec, len(targets))
	for i, path := range targets {
		specs[i] = target.Spec{
			Index: i, Path: path, Host: "localhost",
			BlockSize: c.Int64("blocksize"), ReqSizeBlocks: c.Int64("reqsize"),
			NumReqs: resolveNumReqs(c), Bytes: resolveBytes(c),
			QueueDepth: c.Int("queuedepth"), RWRatio: rwratio,
			StartOffset: c.Int64("startoffset"), PassOffset: c.Int64("passoffset"),
			Passes: c.Int("passes"),

			Options:     opts,
			Ordering:    ordering,
			RetryCount:  c.Int("retrycount"),
			StopOnError: c.Bool("stoponerror"),
			VerifyMode:  verify,
			FlushEvery:  c.Int("flushwrite"),

			Throttle:   throttle,
			Seed:       seekSpec.seed,
			Range:      seekSpec.rang,
			Stride:     seekSpec.stride,
			Interleave: seekSpec.interleave,
			SeekOrder:  seekSpec.order,

			StartDelay: c.Duration("startdelay"),
			TimeLimit:  c.Duration("timelimit"),

			Filler: filler,

			E2EEndpoints:  e2eEndpoints,
			E2EListenAddr: e2eListen,

			Timestamp: ts,
		}
	}

	if seekSpec.saveFile != "" {
		offsets := make([]int64, len(specs))
		for i, s := range specs {
			offsets[i] = s.StartOffset
		}
		if err := plan.SaveSeekList(seekSpec.saveFile, offsets); err != nil {
			return err
		}
	}

	hbSpec, enableHB, err := parseHeartbeat(c)
	if err != nil {
		return err
	}

	restartCfg, err := parseRestart(c.String("restart"))
	if err != nil {
		return err
	}

	lockstepSpecs, err := parseLockstep(c.StringSlice("lockstep"))
	if err != nil {
		return err
	}

	var reg prometheus.Registerer
	var srv *http.Server
	if addr := c.String("metrics-addr"); addr != "" {
		promReg := prometheus.NewRegistry()
		reg = promReg
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		srv = &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				nlog.Warningf("xdd: metrics server: %v", err)
			}
		}()
		defer srv.Close()
	}

	cfg := plan.Config{
		Targets:            specs,
		Passes:             c.Int("passes"),
		ResultsFormat:      c.String("outputformat"),
		ResultsSink:        func(line string) { fmt.Println(line) },
		EnableHeartbeat:    enableHB,
		Heartbeat:          hbSpec,
		Restart:            restartCfg,
		MaxConcurrentOpens: c.Int("maxconcurrentopens"),
		TimeLimit:          c.Duration("timelimit"),
		IO:                 iosvc.New(),
		MetricsRegistry:    reg,
		Lockstep:           lockstepSpecs,
	}

	p, err := plan.New(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := p.Start(ctx); err != nil {
		return err
	}
	runErr := p.Wait(ctx)

	if prefix := c.String("timestamp-output"); prefix != "" {
		mode := timestamp.CSVSummary
		if c.String("timestamp-csv-mode") == "detailed" {
			mode = timestamp.CSVDetailed
		}
		if err := plan.DumpTimestamps(p.Targets(), prefix, mode, c.Bool("timestamp-csv")); err != nil {
			nlog.Warningf("xdd: dump timestamps: %v", err)
		}
	}

	if err := p.Destroy(); err != nil {
		nlog.Warningf("xdd: destroy: %v", err)
	}

	if ctx.Err() != nil {
		// SIGINT/SIGTERM canceled the run's context.
		return xerrors.CanceledError()
	}
	if runErr != nil {
		return runErr
	}
	if p.Canceled() {
		return xerrors.CanceledError()
	}
	return nil
}

func resolveTargetPaths(c *cli.Context) ([]string, error) {
	var paths []string
	paths = append(paths, c.StringSlice("target")...)
	if dir := c.String("targetdir"); dir != "" {
		expanded, err := plan.ExpandTargetDir(dir)
		if err != nil {
			return nil, err
		}
		paths = append(paths, expanded...)
	}
	if len(paths) == 0 {
		return nil, xerrors.ConfigError("xdd: at least one -target or -targetdir is required")
	}
	return paths, nil
}

func resolveNumReqs(c *cli.Context) int64 {
	if c.IsSet("numreqs") {
		return c.Int64("numreqs")
	}
	return 0
}

func resolveBytes(c *cli.Context) int64 {
	switch {
	case c.IsSet("bytes"):
		return c.Int64("bytes")
	case c.IsSet("kbytes"):
		return c.Int64("kbytes") * 1024
	case c.IsSet("mbytes"):
		return c.Int64("mbytes") * 1024 * 1024
	default:
		return 0
	}
}

type seekOpts struct {
	order      pattern.SeekOrder
	seed       int64
	rang       int64
	stride     int64
	interleave int
	saveFile   string
	loadFile   string
}

// parseSeek parses the space-separated -seek directive tokens; unknown
// trailing tokens (disthist/seekhist) are accepted and ignored since they
// only affect an optional histogram report this engine does not render.
func parseSeek(raw string) (seekOpts, error) {
	opts := seekOpts{order: pattern.Sequential}
	fields := strings.Fields(raw)
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "random":
			opts.order = pattern.Random
		case "sequential", "none":
			opts.order = pattern.Sequential
		case "stagger":
			i++
			v, err := parseInt64(fields, i)
			if err != nil {
				return opts, err
			}
			opts.stride = v
		case "interleave":
			i++
			v, err := parseInt64(fields, i)
			if err != nil {
				return opts, err
			}
			opts.interleave = int(v)
		case "range":
			i++
			v, err := parseInt64(fields, i)
			if err != nil {
				return opts, err
			}
			opts.rang = v
		case "seed":
			i++
			v, err := parseInt64(fields, i)
			if err != nil {
				return opts, err
			}
			opts.seed = v
		case "save":
			i++
			if i >= len(fields) {
				return opts, xerrors.ConfigError("xdd: -seek save requires a file argument")
			}
			opts.saveFile = fields[i]
		case "load":
			i++
			if i >= len(fields) {
				return opts, xerrors.ConfigError("xdd: -seek load requires a file argument")
			}
			opts.loadFile = fields[i]
		case "disthist", "seekhist", "":
			// accepted, not rendered
		default:
			return opts, xerrors.ConfigError(fmt.Sprintf("xdd: unrecognized -seek token %q", fields[i]))
		}
	}
	return opts, nil
}

func parseInt64(fields []string, i int) (int64, error) {
	if i >= len(fields) {
		return 0, xerrors.ConfigError("xdd: -seek directive missing numeric argument")
	}
	v, err := strconv.ParseInt(fields[i], 10, 64)
	if err != nil {
		return 0, xerrors.ConfigError(fmt.Sprintf("xdd: -seek: %v", err))
	}
	return v, nil
}

func parseThrottle(raw string, variance float64) (pattern.ThrottleSpec, error) {
	if raw == "" {
		return pattern.ThrottleSpec{}, nil
	}
	fields := strings.Fields(raw)
	if len(fields) != 2 {
		return pattern.ThrottleSpec{}, xerrors.ConfigError("xdd: -throttle requires \"{ops|bw|delay} VALUE\"")
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return pattern.ThrottleSpec{}, xerrors.ConfigError(fmt.Sprintf("xdd: -throttle: %v", err))
	}
	switch fields[0] {
	case "bw":
		return pattern.ThrottleSpec{Kind: pattern.ThrottleBandwidth, BytesPerSec: v * 1024 * 1024, VarianceFrac: variance}, nil
	case "ops", "iops":
		return pattern.ThrottleSpec{Kind: pattern.ThrottleIOPS, IOPS: v}, nil
	case "delay":
		return pattern.ThrottleSpec{Kind: pattern.ThrottleDelay, DelaySeconds: v}, nil
	default:
		return pattern.ThrottleSpec{}, xerrors.ConfigError(fmt.Sprintf("xdd: unrecognized -throttle kind %q", fields[0]))
	}
}

func parseDataPattern(raw string) (datapattern.Filler, error) {
	if raw == "" {
		return datapattern.NewSequenced(), nil
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		v, err := strconv.ParseUint(raw[2:], 16, 8)
		if err != nil {
			return nil, xerrors.ConfigError(fmt.Sprintf("xdd: -datapattern: %v", err))
		}
		return datapattern.NewConstant(byte(v)), nil
	}
	if len(raw) != 1 {
		return nil, xerrors.ConfigError("xdd: -datapattern expects a single char or 0xHH byte")
	}
	return datapattern.NewConstant(raw[0]), nil
}

// parseE2EHosts parses "host[:port[/count]],host2..." into a resolved
// endpoint list sized to queueDepth, via e2e's address table.
func parseE2EHosts(raw string, queueDepth int) ([]e2e.Endpoint, error) {
	if raw == "" {
		return nil, nil
	}
	var hosts []e2e.HostSpec
	for _, entry := range strings.Split(raw, ",") {
		hostPort := strings.SplitN(entry, ":", 2)
		spec := e2e.HostSpec{Host: hostPort[0], BasePort: 40000}
		if len(hostPort) == 2 {
			portCount := strings.SplitN(hostPort[1], "/", 2)
			port, err := strconv.Atoi(portCount[0])
			if err != nil {
				return nil, xerrors.ConfigError(fmt.Sprintf("xdd: -e2e-source-hosts: %v", err))
			}
			spec.BasePort = port
			if len(portCount) == 2 {
				count, err := strconv.Atoi(portCount[1])
				if err != nil {
					return nil, xerrors.ConfigError(fmt.Sprintf("xdd: -e2e-source-hosts: %v", err))
				}
				spec.PortCount = count
			}
		}
		hosts = append(hosts, spec)
	}
	return e2e.AddressTable(hosts, queueDepth), nil
}

func parseTimestamp(raw string) (timestamp.Spec, error) {
	spec := timestamp.Spec{Mode: timestamp.ModeOff, Size: timestamp.DefaultSize}
	if raw == "" {
		return spec, nil
	}
	fields := strings.Fields(raw)
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "on":
			spec.Mode = timestamp.ModeOn
		case "off":
			spec.Mode = timestamp.ModeOff
		case "wrap":
			spec.Wrap = true
		case "oneshot":
			spec.Wrap = false
		case "size":
			i++
			v, err := parseInt64(fields, i)
			if err != nil {
				return spec, err
			}
			spec.Size = int(v)
		case "triggertime":
			i++
			v, err := parseInt64(fields, i)
			if err != nil {
				return spec, err
			}
			spec.Trigger = timestamp.TriggerTime
			spec.TrigTime = time.Duration(v) * time.Second
		case "triggerop":
			i++
			v, err := parseInt64(fields, i)
			if err != nil {
				return spec, err
			}
			spec.Trigger = timestamp.TriggerOp
			spec.TrigOp = v
		case "normalize", "append":
			// accepted, not distinctly modeled: trace times are raw
			// clock.Now() values, not normalized to the run start, and the
			// dump path always (re)creates its file.
		default:
			return spec, xerrors.ConfigError(fmt.Sprintf("xdd: unrecognized -timestamp token %q", fields[i]))
		}
	}
	return spec, nil
}

func parseHeartbeat(c *cli.Context) (heartbeat.Spec, bool, error) {
	raw := c.String("heartbeat")
	if raw == "" {
		return heartbeat.Spec{}, false, nil
	}
	fields := strings.Fields(raw)
	spec := heartbeat.Spec{
		Interval:        2 * time.Second,
		LineFeed:        c.Bool("heartbeat-lf"),
		IgnoreRestart:   c.Bool("heartbeat-ignorerestart"),
		SampleHostStats: c.Bool("heartbeat-hoststats"),
		Sink:            func(line string) { fmt.Print(line) },
	}
	for _, tok := range fields {
		if strings.HasPrefix(tok, "+") {
			spec.Fields = append(spec.Fields, strings.TrimPrefix(tok, "+"))
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSuffix(tok, "s")); err == nil {
			spec.Interval = time.Duration(n) * time.Second
		}
	}
	return spec, true, nil
}

// parseLockstep parses each "-lockstep" occurrence's "M S WHEN HOWLONG WHAT
// HOWMUCH COMPLETION" token string into a throttle.Spec. STARTUP is accepted
// but not modeled: this engine always starts the slave waiting at the
// barrier.
func parseLockstep(raws []string) ([]throttle.Spec, error) {
	var specs []throttle.Spec
	for _, raw := range raws {
		fields := strings.Fields(raw)
		if len(fields) < 6 {
			return nil, xerrors.ConfigError("xdd: -lockstep requires \"M S WHEN HOWLONG WHAT HOWMUCH [COMPLETION]\"")
		}
		m, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, xerrors.ConfigError(fmt.Sprintf("xdd: -lockstep master index: %v", err))
		}
		s, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, xerrors.ConfigError(fmt.Sprintf("xdd: -lockstep slave index: %v", err))
		}
		when, err := parseIntervalKind(fields[2])
		if err != nil {
			return nil, err
		}
		howlong, err := strconv.ParseFloat(fields[3], 64)
		if err != nil {
			return nil, xerrors.ConfigError(fmt.Sprintf("xdd: -lockstep HOWLONG: %v", err))
		}
		what, err := parseIntervalKind(fields[4])
		if err != nil {
			return nil, err
		}
		howmuch, err := strconv.ParseFloat(fields[5], 64)
		if err != nil {
			return nil, xerrors.ConfigError(fmt.Sprintf("xdd: -lockstep HOWMUCH: %v", err))
		}
		completion := throttle.CompletionComplete
		if len(fields) >= 7 && fields[len(fields)-1] == "stop" {
			completion = throttle.CompletionStop
		}
		specs = append(specs, throttle.Spec{
			MasterIndex: m, SlaveIndex: s,
			Interval: when, IntervalVal: howlong,
			Task: what, TaskVal: howmuch,
			Completion: completion,
		})
	}
	return specs, nil
}

func parseIntervalKind(tok string) (throttle.IntervalKind, error) {
	switch tok {
	case "time":
		return throttle.IntervalTime, nil
	case "op", "ops":
		return throttle.IntervalOps, nil
	case "percent", "pct":
		return throttle.IntervalPercent, nil
	case "bytes":
		return throttle.IntervalBytes, nil
	default:
		return 0, xerrors.ConfigError(fmt.Sprintf("xdd: unrecognized -lockstep interval kind %q", tok))
	}
}

func parseRestart(raw string) (plan.RestartConfig, error) {
	cfg := plan.RestartConfig{Interval: 30 * time.Second}
	if raw == "" {
		return cfg, nil
	}
	fields := strings.Fields(raw)
	for i := 0; i < len(fields); i++ {
		switch fields[i] {
		case "enable":
			cfg.Enable = true
		case "file":
			i++
			if i >= len(fields) {
				return cfg, xerrors.ConfigError("xdd: -restart file requires a path")
			}
			cfg.DBPath = fields[i]
			cfg.FlatFile = fields[i] + ".flat"
		case "freq":
			i++
			v, err := parseInt64(fields, i)
			if err != nil {
				return cfg, err
			}
			cfg.Interval = time.Duration(v) * time.Second
		case "offset":
			i++
			if _, err := parseInt64(fields, i); err != nil {
				return cfg, err
			}
		default:
			return cfg, xerrors.ConfigError(fmt.Sprintf("xdd: unrecognized -restart token %q", fields[i]))
		}
	}
	return cfg, nil
}
