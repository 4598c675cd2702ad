package commands

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	_config = NewDefaultCLIConfig()
)

// RootCmd is the root command for helisync
var RootCmd = &cobra.Command{
	Use:               "helisync",
	Short:             "booking and timetable sync between camp, town and helicopter",
	TraverseChildren:  true,
	PersistentPreRunE: loadEnv,
}

// loadEnv reads the optional .env file of the working directory, or the file
// named by HELISYNC_ENV, into the environment before viper looks at it.
// Variables already set in the environment win.
func loadEnv(cmd *cobra.Command, args []string) error {
	path := os.Getenv("HELISYNC_ENV")
	if path == "" {
		path = ".env"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	return godotenv.Load(path)
}
