// Package cli assembles the repoteer command line application: the Cobra
// root command, configuration loading with embedded defaults, logger setup,
// and registration of the fleet subcommands. Invoking the binary without a
// subcommand runs sync.
package cli
