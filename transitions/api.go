// Copyright (c) 2021-2026, The OpenVFS Authors.
// SPDX-License-Identifier: Apache-2.0

// Package transitions orchestrates the lifecycle of the other lockfs
// packages.
//
// Each package interested in configuration lifecycle events implements the
// Callbacks interface and calls transitions.Register() from its init()
// func. Up() callbacks are then issued in registration order and Down()
// callbacks in reverse registration order, so a package may rely on the
// packages it imports being up before it and down after it.
package transitions

import (
	"fmt"

	"github.com/openvfs/lockfs/conf"
)

// Callbacks is the interface implemented by each package desiring
// notification of configuration lifecycle changes.
type Callbacks interface {
	Up(confMap conf.ConfMap) (err error)
	Down(confMap conf.ConfMap) (err error)
}

type registrationItem struct {
	packageName string
	callbacks   Callbacks
}

var registrations = []registrationItem{}

var currentlyUp = false

// Register should be called from a package's init() func should the package
// be interested in Up/Down callbacks. Registration order determines
// callback order.
func Register(packageName string, callbacks Callbacks) {
	registrations = append(registrations, registrationItem{packageName: packageName, callbacks: callbacks})
}

// Up issues Up(confMap) calls to registered packages in registration order.
// On the first error, packages already up are taken back down in reverse
// order and the error is returned.
func Up(confMap conf.ConfMap) (err error) {
	if currentlyUp {
		err = fmt.Errorf("transitions.Up() called while already up")
		return
	}

	for registrationIndex, registration := range registrations {
		err = registration.callbacks.Up(confMap)
		if nil != err {
			err = fmt.Errorf("transitions.Up() failed in package %v: %v", registration.packageName, err)
			for unwindIndex := registrationIndex - 1; unwindIndex >= 0; unwindIndex-- {
				_ = registrations[unwindIndex].callbacks.Down(confMap)
			}
			return
		}
	}

	currentlyUp = true

	err = nil
	return
}

// Down issues Down(confMap) calls to registered packages in reverse
// registration order. All packages are taken down even if one fails; the
// first error is returned.
func Down(confMap conf.ConfMap) (err error) {
	if !currentlyUp {
		err = fmt.Errorf("transitions.Down() called while not up")
		return
	}

	for registrationIndex := len(registrations) - 1; registrationIndex >= 0; registrationIndex-- {
		downErr := registrations[registrationIndex].callbacks.Down(confMap)
		if (nil != downErr) && (nil == err) {
			err = fmt.Errorf("transitions.Down() failed in package %v: %v", registrations[registrationIndex].packageName, downErr)
		}
	}

	currentlyUp = false

	return
}
