package paths

import (
	"flag"
	"fmt"
)

// SetupFilePathFlag defines a string flag on fs naming the file to read
// settings from. It defaults to wherever Find locates fileName; without a file
// the flag is empty and built-in defaults apply.
func SetupFilePathFlag(fs *flag.FlagSet, fileName, flagName string, flagPtr *string) {
	fs.StringVar(flagPtr, flagName, Find(fileName), fmt.Sprintf("path to %s; empty to run on built-in defaults (searched: $%s, working directory, user config directory, binary directory)", fileName, EnvHome))
}
