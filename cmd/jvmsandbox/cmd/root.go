package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	clihander "github.com/apex/log/handlers/cli"
	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/daimatz/jvmsandbox/internal/config"
	"github.com/daimatz/jvmsandbox/pkg/sandbox"
	"github.com/daimatz/jvmsandbox/pkg/workspace"
)

var (
	cfgFile string
	// Verbose boolean flag for verbose logging
	Verbose bool
	// AppVersion stores the build's version
	AppVersion string
)

var (
	colorKind  = color.New(color.Bold, color.FgHiRed).SprintFunc()
	colorName  = color.New(color.Bold, color.FgHiYellow).SprintFunc()
	colorField = color.New(color.Bold, color.FgHiBlue).SprintFunc()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "jvmsandbox",
	Short:         "Run static Java code from a workspace inside an embedded JVM",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if Verbose {
			log.SetLevel(log.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	rootCmd.Version = AppVersion
	if err := rootCmd.Execute(); err != nil {
		var f *sandbox.Failure
		if !errors.As(err, &f) {
			log.Error(err.Error())
		}
		os.Exit(1)
	}
}

func init() {
	log.SetHandler(clihander.Default)

	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/jvmsandbox/config.yaml)")
	pf.BoolVarP(&Verbose, "verbose", "V", false, "verbose output")
	pf.String("jmod", "", "java.base.jmod, jar or class directory of the standard library")
	pf.StringP("workspace", "w", "", "primary workspace artifact (jar or class directory)")
	pf.StringSlice("lib", nil, "supporting workspace artifacts")
	pf.String("manifest", "", "workspace manifest (YAML)")
	bindFlags(pf, map[string]string{
		"snapshot.path":        "jmod",
		"workspace.primary":    "workspace",
		"workspace.supporting": "lib",
		"workspace.manifest":   "manifest",
	})

	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(fieldCmd)
	rootCmd.AddCommand(clinitCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(schemaCmd)
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

func bindFlags(fs *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := viper.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)
		viper.AddConfigPath(filepath.Join(home, ".config", "jvmsandbox"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("jvmsandbox")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	config.SetDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		log.Debugf("using config file: %s", viper.ConfigFileUsed())
	}
}

// host bundles what a command needs to run operations.
type host struct {
	conf     *config.Config
	ws       *workspace.Manager
	provider *sandbox.Provider
}

func (h *host) Close() {
	h.provider.Manager().Close()
	h.ws.Close()
}

func openHost(ctx context.Context) (*host, error) {
	conf, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	snap, err := sandbox.OpenSnapshot(conf.Snapshot.Path, conf.Snapshot.CacheSize)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open standard library snapshot %s", conf.Snapshot.Path)
	}
	if err := snap.Verify(conf.Snapshot.Version); err != nil {
		return nil, err
	}

	ws := workspace.NewManager()
	switch {
	case conf.Workspace.Manifest != "":
		mf, err := workspace.LoadManifest(conf.Workspace.Manifest)
		if err != nil {
			return nil, err
		}
		if _, err := ws.OpenManifest(ctx, mf); err != nil {
			return nil, errors.Wrapf(err, "failed to open workspace from %s", conf.Workspace.Manifest)
		}
	case conf.Workspace.Primary != "":
		if _, err := ws.Open(ctx, conf.Workspace.Primary, conf.Workspace.Supporting...); err != nil {
			return nil, errors.Wrapf(err, "failed to open workspace %s", conf.Workspace.Primary)
		}
	default:
		log.Warn("no workspace configured: operations will fail with NoWorkspace")
	}

	mgr := sandbox.NewManager(snap, ws, sandbox.WithMaxIterations(conf.Sandbox.MaxIterations))
	return &host{conf: conf, ws: ws, provider: sandbox.NewProvider(mgr)}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// report prints the result of one operation. Failures are printed as JSON
// too, after a colored header on stderr, and returned so the exit status
// reflects them.
func report(res any, err error) error {
	if err == nil {
		return writeJSON(os.Stdout, res)
	}
	var f *sandbox.Failure
	if !errors.As(err, &f) {
		return err
	}
	fmt.Fprintf(os.Stderr, "%s %s: %s\n", colorKind("["+string(f.Kind)+"]"), colorName(f.Name), f.Message)
	if werr := writeJSON(os.Stdout, f); werr != nil {
		return werr
	}
	return f
}

// parseJSON decodes a flag or argument holding JSON. Numbers stay
// json.Number so longs keep their precision.
func parseJSON(name, s string) (any, error) {
	if s == "" {
		return nil, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrapf(err, "%s is not valid JSON", name)
	}
	return v, nil
}
