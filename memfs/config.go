// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

package memfs

import (
	"github.com/openvfs/lockfs/conf"
	"github.com/openvfs/lockfs/transitions"
)

type globalsStruct struct {
	// nothing package-global yet; volumes are self-contained. The package
	// still participates in the transitions protocol so that it starts and
	// stops in order with the packages it depends on.
}

var globals globalsStruct

func init() {
	transitions.Register("memfs", &globals)
}

func (dummy *globalsStruct) Up(confMap conf.ConfMap) (err error) {
	return
}

func (dummy *globalsStruct) Down(confMap conf.ConfMap) (err error) {
	return
}
