// Command pintgo-demo boots the kernel core and runs the scenarios from
// spec.md section 8 as subcommands, standing in for Biscuit's own
// kernel/main.go boot sequence and its exec("bin/init", nil) call.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/justanotherdot/pintgo/kdefs"
	"github.com/justanotherdot/pintgo/kernel"
)

var cfgFile string

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	log, err := cfg.Build()
	if err != nil {
		log = zap.NewNop()
	}
	return log
}

func newKernel(cmd *cobra.Command) *kernel.Kernel {
	log := newLogger(viper.GetBool("verbose"))
	cfg := kernel.Config{
		PriMin:     kdefs.Prio(viper.GetInt("pri-min")),
		PriDefault: kdefs.Prio(viper.GetInt("pri-default")),
		PriMax:     kdefs.Prio(viper.GetInt("pri-max")),
	}
	fsDisk := newMemDisk(4096)
	swapDisk := newMemDisk(4096)
	return kernel.Boot(cfg, fsDisk, swapDisk, log)
}

func main() {
	root := &cobra.Command{
		Use:   "pintgo-demo",
		Short: "Boot the pintgo kernel core and run its instructional scenarios",
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.pintgo-demo.yaml)")
	root.PersistentFlags().Bool("verbose", false, "enable debug-level logging")
	root.PersistentFlags().Int("pri-min", int(kdefs.PriMin), "minimum thread priority")
	root.PersistentFlags().Int("pri-default", int(kdefs.PriDefault), "default thread priority")
	root.PersistentFlags().Int("pri-max", int(kdefs.PriMax), "maximum thread priority")
	viper.BindPFlag("verbose", root.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("pri-min", root.PersistentFlags().Lookup("pri-min"))
	viper.BindPFlag("pri-default", root.PersistentFlags().Lookup("pri-default"))
	viper.BindPFlag("pri-max", root.PersistentFlags().Lookup("pri-max"))
	viper.SetEnvPrefix("pintgo")
	viper.AutomaticEnv()

	cobra.OnInitialize(func() {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			_ = viper.ReadInConfig()
		} else if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".pintgo-demo")
			viper.SetConfigType("yaml")
			_ = viper.ReadInConfig()
		}
	})

	boot := &cobra.Command{
		Use:   "boot",
		Short: "Boot the kernel core and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := newKernel(cmd)
			fmt.Println("pintgo kernel booted: scheduler, alarm queue, and VM core are live")
			_ = k
			return nil
		},
	}

	demo := &cobra.Command{
		Use:   "demo",
		Short: "Run one of the instructional scenarios (S1-S6)",
	}
	demo.AddCommand(donationCmd())
	demo.AddCommand(sleepCmd())
	demo.AddCommand(swapCmd())
	demo.AddCommand(mmapCmd())

	root.AddCommand(boot, demo)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
