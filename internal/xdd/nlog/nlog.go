// Package nlog provides leveled logging for the XDD engine.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package nlog

import (
	"fmt"

	"github.com/golang/glog"
)

// Verbosity gates high-volume per-op tracing separately from the default
// per-pass/per-run logging.
type Level = glog.Level

func V(level Level) glog.Verbose { return glog.V(level) }

func Infoln(args ...any)                   { glog.InfoDepth(1, fmt.Sprintln(args...)) }
func Infof(format string, args ...any)     { glog.InfoDepth(1, fmt.Sprintf(format, args...)) }
func Warningln(args ...any)                { glog.WarningDepth(1, fmt.Sprintln(args...)) }
func Warningf(format string, args ...any)  { glog.WarningDepth(1, fmt.Sprintf(format, args...)) }
func Errorln(args ...any)                  { glog.ErrorDepth(1, fmt.Sprintln(args...)) }
func Errorf(format string, args ...any)    { glog.ErrorDepth(1, fmt.Sprintf(format, args...)) }
func Fatalln(args ...any)                  { glog.FatalDepth(1, fmt.Sprintln(args...)) }

// Flush flushes any buffered log entries; callers should defer it from main.
func Flush() { glog.Flush() }
