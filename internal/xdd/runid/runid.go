// Package runid generates run/target identifiers embedded in the
// timestamp-trace header's "id string" field.
/*
 * Copyright (c) 2024, XDD Project. All rights reserved.
 */
package runid

import (
	"github.com/teris-io/shortid"
)

var generator *shortid.Shortid

func init() {
	generator, _ = shortid.New(1, shortid.DefaultABC, 0xDEAD)
}

// New returns a short, URL-safe run identifier.
func New() string {
	id, err := generator.Generate()
	if err != nil {
		return "xdd-run"
	}
	return id
}
