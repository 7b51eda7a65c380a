//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Test mg.Namespace

// All Runs all test suites
func (t Test) All() error {
	mg.Deps(t.Unit, t.Race)
	return nil
}

// Unit Runs the unit tests
func (Test) Unit() error {
	fmt.Println("running unit tests")
	return goTest("./...", "-timeout", "10m")
}

// Race Runs the unit tests with the race detector
func (Test) Race() error {
	fmt.Println("running unit tests with the race detector")
	return goTest("./...", "-race", "-timeout", "15m")
}

// Cover Runs the unit tests and writes a coverage profile
func (Test) Cover() error {
	fmt.Println("running unit tests with coverage")
	return goTest("./...", "-coverprofile=coverage.txt", "-covermode=atomic", "-timeout", "10m")
}
