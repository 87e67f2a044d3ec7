package cli

import (
	"fmt"

	"github.com/n4t3/passenger/internal"
)

// Represents the 'passengerd version' command.
type VersionCmd struct{}

// Executes the version command.
func (c *VersionCmd) Run() error {
	fmt.Println(internal.VersionString())
	return nil
}
