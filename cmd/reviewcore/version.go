package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/wosledon/AIReview-sub002/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run:   runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

type versionReport struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
}

func runVersion(cmd *cobra.Command, args []string) {
	switch formatFlag {
	case "json":
		out, _ := json.MarshalIndent(versionReport{
			Version:   version.Version,
			Commit:    version.Commit,
			BuildDate: version.BuildDate,
		}, "", "  ")
		fmt.Println(string(out))
	case "yaml":
		out, _ := yaml.Marshal(versionReport{
			Version:   version.Version,
			Commit:    version.Commit,
			BuildDate: version.BuildDate,
		})
		fmt.Print(string(out))
	default:
		fmt.Println(version.Full())
	}
}
