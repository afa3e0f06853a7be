//go:build mage

package main

import (
	"fmt"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Compiles every GLSL shader under assets/shaders to SPIR-V.
func (Build) Shaders() error {
	for _, pattern := range []string{"assets/shaders/*.vert", "assets/shaders/*.frag"} {
		sources, err := filepath.Glob(pattern)
		if err != nil {
			return err
		}
		for _, source := range sources {
			if _, err := executeCmd("glslc", withArgs(source, "-o", source+".spv"), withStream()); err != nil {
				return err
			}
		}
	}
	return nil
}

// Builds the engine binary into bin/.
func (Build) Binary() error {
	mg.Deps(Build.Shaders)
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/kiln", "."), withStream()); err != nil {
		return err
	}
	fmt.Println("Binary written to bin/kiln")
	return nil
}

// Runs the full test suite.
func (Build) Test() error {
	if _, err := executeCmd("go", withArgs("test", "./..."), withStream()); err != nil {
		return err
	}
	return nil
}
