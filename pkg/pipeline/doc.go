// Package pipeline implements the AutoBase Agent build: prepare a virtual
// environment, install the dependencies and PyInstaller, package the
// application and check that the executable was produced.
//
// Steps run strictly in order. The first failing step stops the build and
// every later step is recorded as skipped. The only exception is the report
// step, which always runs when enabled so failed builds are documented too.
package pipeline
