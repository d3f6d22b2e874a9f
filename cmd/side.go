/*
Copyright © 2020 NAME HERE <EMAIL ADDRESS>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notargets/mblkcomm/InputParameters"
	"github.com/notargets/mblkcomm/sidetest"
	"github.com/notargets/mblkcomm/tester"
)

type SideModel struct {
	ICFile      string
	Profile     bool
	FinestLevel int // negative keeps the input file's value
}

const exampleFile = `
########################################
Title: "Two blocks, one turned over"
Dim: 2
RefineOption: INTERIOR_FROM_SAME_LEVEL # or INTERIOR_FROM_COARSER_LEVEL
FinestLevel: 1
RefinementRatio: 2
MaxPatchSize: 4
Geometry:
  XLo: [0, 0]
  Dx: [0.25, 0.25]
  Blocks:
    - {Name: left, Lo: [0, 0], Hi: [3, 3]}
    - {Name: right, Lo: [0, 0], Hi: [3, 3], Rotation: 2, Offset: [8, 4]}
  # Neighbors glue faces the placements do not join, mapping the first
  # block's index space into the second's:
  # Neighbors:
  #   - {Blocks: [0, 1], Rotation: 1, Offset: [8, 0]}
Variables:
  - {Name: u, Depth: 1, DstGhosts: [2, 2], RefineOperator: LINEAR_REFINE}
  - {Name: w, Depth: 2, RefineOperator: CONSTANT_REFINE}
Refinement:
  Criterion: BOXES # or MAGNITUDE, GRADIENT with Threshold
  TagBoxes:
    - {Level: 0, Block: 0, Lo: [2, 1], Hi: [3, 2]}
########################################
`

// SideCmd represents the side command
var SideCmd = &cobra.Command{
	Use:   "side",
	Short: "Face-normal data communication test on a multiblock hierarchy",
	Long: `
Runs the side data multiblock test described by an input file and exits
non-zero if any patch fails verification.

mblkcomm side -I input.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		var (
			err error
		)
		sm := &SideModel{}
		if sm.ICFile, err = cmd.Flags().GetString("inputConditionsFile"); err != nil {
			panic(err)
		}
		sm.Profile, _ = cmd.Flags().GetBool("profile")
		sm.FinestLevel, _ = cmd.Flags().GetInt("finestLevel")
		ip, err := processSideInput(sm)
		if err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		ip.Print()
		if sm.Profile {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop()
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		report, err := RunSide(ctx, ip, slog.Default())
		if err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
		fmt.Println(report)
		if !report.Passed {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(SideCmd)
	SideCmd.Flags().StringP("inputConditionsFile", "I", "", "YAML file describing blocks, variables and refinement")
	SideCmd.Flags().BoolP("profile", "p", false, "write a CPU profile to the current directory")
	SideCmd.Flags().IntP("finestLevel", "l", -1, "override the finest level of the input file")
}

func processSideInput(sm *SideModel) (ip *InputParameters.MultiblockTestParameters, err error) {
	if len(sm.ICFile) == 0 {
		fmt.Printf("Example File:%s\n", exampleFile)
		return nil, fmt.Errorf("must supply an input parameters file (-I, --inputConditionsFile)")
	}
	var data []byte
	if data, err = os.ReadFile(sm.ICFile); err != nil {
		return
	}
	ip = &InputParameters.MultiblockTestParameters{}
	if err = ip.Parse(data); err != nil {
		return nil, fmt.Errorf("%s: %w", sm.ICFile, err)
	}
	if sm.FinestLevel >= 0 {
		ip.FinestLevel = sm.FinestLevel
	}
	if w := viper.GetInt("workers"); w > 0 {
		ip.Workers = w
	}
	return
}

// RunSide builds the geometry and side data strategy described by ip and
// runs the full test.
func RunSide(ctx context.Context, ip *InputParameters.MultiblockTestParameters,
	logger *slog.Logger) (report *tester.Report, err error) {
	g, err := ip.NewGeometry()
	if err != nil {
		return
	}
	smt, err := sidetest.NewSideMultiblockTest("SideMultiblockTest", ip.Dim, ip, ip.RefineOption)
	if err != nil {
		return
	}
	smt.Logger = logger
	mbt, err := tester.NewMultiblockTester("MultiblockTester", tester.Config{
		RefineOption:    ip.RefineOption,
		FinestLevel:     ip.FinestLevel,
		RefinementRatio: ip.RefinementRatio,
		MaxPatchSize:    ip.MaxPatchSize,
		Workers:         ip.Workers,
	}, g, smt)
	if err != nil {
		return
	}
	mbt.Logger = logger
	return mbt.Run(ctx)
}
