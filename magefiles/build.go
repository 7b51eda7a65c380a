//go:build mage

package main

import (
	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

type Build mg.Namespace

// Binary Build the lightci binary
func (Build) Binary() error {
	return sh.RunV("go", "build", "-o", "dist/lightci", "./cmd/lightci")
}
