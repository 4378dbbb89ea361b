/*
Copyright © 2026 Deutsche Telekom AG
*/
package cmd

import (
	"flag"
	"os"
	"regexp"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/telekom/api-catalog/internal/config"
	"github.com/telekom/api-catalog/internal/system"
)

var (
	setupLog   logr.Logger
	scheme     *runtime.Scheme
	verbosity  int
	configPath string
)

// sensitivePattern matches flag names whose values must never be logged.
var sensitivePattern = regexp.MustCompile(`(?i)(token|secret|password|passphrase|key|auth|credential|private|cert|bearer|client[-_]id)`)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "api-catalog",
	Short: "Discovers the API resources served by a Kubernetes cluster",
	Long: `api-catalog periodically enumerates the API groups and resources of a cluster,
classifies them and keeps the resulting catalog in memory and in a local cache.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := flag.Set("v", strconv.Itoa(verbosity)); err != nil {
			return err
		}
		ctrl.SetLogger(klog.NewKlogr())
		log := klog.NewKlogr()
		log.Info("app info", "name", system.Name, "version", system.Version, "commit", system.Commit)
		log.V(1).Info("flags", "values", redactSensitiveFlags(cmd.Flags()))
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	setupLog = ctrl.Log.WithName("setup")
	klog.InitFlags(nil)
	cobra.OnInitialize(initScheme)

	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbosity", "v", 0, "Log level (0-9)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("API_CATALOG_CONFIG"), "Path to a YAML configuration file.")
	config.BindFlags(rootCmd.PersistentFlags())
}

func initScheme() {
	scheme = runtime.NewScheme()
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(apiextensionsv1.AddToScheme(scheme))
}

// loadConfig merges the configuration file, the environment and the flags set on cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(configPath, cmd.Flags())
}

// redactSensitiveFlags returns all flag values of fs, masking those matching sensitivePattern.
func redactSensitiveFlags(fs *pflag.FlagSet) map[string]string {
	values := map[string]string{}
	fs.VisitAll(func(f *pflag.Flag) {
		if sensitivePattern.MatchString(f.Name) {
			values[f.Name] = "[REDACTED]"
			return
		}
		values[f.Name] = f.Value.String()
	})
	return values
}
