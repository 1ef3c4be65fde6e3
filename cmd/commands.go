package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	appconfig "hot-mess-coach/internal/config"
	"hot-mess-coach/internal/server"
)

func newRootCmd() *cobra.Command {
	v := viper.New()
	appconfig.SetDefaults(v)

	var cfgFile string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, v)
		},
	}

	rootCmd := &cobra.Command{
		Use:   "hot-mess-coach",
		Short: "HTTP relay between the Hot Mess Coach frontend and the OpenAI chat API",
		Long: `hot-mess-coach relays a single user message to the OpenAI chat completion
API with a fixed coaching prompt and returns the reply as JSON.

Configuration is read from flags, then environment variables
(OPENAI_API_KEY, ALLOWED_ORIGINS, PORT, ...), then an optional YAML file.`,
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(v, cfgFile)
		},
		// Without a subcommand the process handles Lambda invocations when the
		// Lambda runtime started it, and serves HTTP otherwise.
		RunE: func(cmd *cobra.Command, _ []string) error {
			if inLambdaRuntime() {
				return runLambda(cmd, v)
			}
			return runServe(cmd, v)
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (json, text)")
	rootCmd.PersistentFlags().String("model", appconfig.DefaultModel, "OpenAI model identifier")
	rootCmd.PersistentFlags().String("openai-base-url", appconfig.DefaultBaseURL, "OpenAI-compatible API base URL")
	rootCmd.PersistentFlags().Duration("upstream-timeout", appconfig.DefaultUpstreamTimeout, "timeout for each upstream completion call")
	rootCmd.PersistentFlags().Bool("metrics", true, "expose Prometheus metrics on /metrics")

	rootCmd.Flags().AddFlagSet(serveFlags())
	serveCmd.Flags().AddFlagSet(serveFlags())

	lambdaCmd := &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function behind API Gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLambda(cmd, v)
		},
	}

	rootCmd.AddCommand(serveCmd, lambdaCmd)
	return rootCmd
}

func serveFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	fs.String("host", appconfig.DefaultHost, "listen host")
	fs.Int("port", appconfig.DefaultPort, "listen port")
	fs.Duration("shutdown-timeout", appconfig.DefaultShutdownTimeout, "graceful shutdown timeout")
	return fs
}

var flagKeys = map[string]string{
	"log-level":        appconfig.KeyLogLevel,
	"log-format":       appconfig.KeyLogFormat,
	"model":            appconfig.KeyModel,
	"openai-base-url":  appconfig.KeyBaseURL,
	"upstream-timeout": appconfig.KeyUpstreamTimeout,
	"metrics":          appconfig.KeyMetricsEnabled,
	"host":             appconfig.KeyHost,
	"port":             appconfig.KeyPort,
	"shutdown-timeout": appconfig.KeyShutdownTimeout,
}

// bindFlags binds the flags of the executing command to their viper keys.
// Only flags set explicitly override the environment.
func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || bindErr != nil {
			return
		}
		if err := v.BindPFlag(key, f); err != nil {
			bindErr = fmt.Errorf("bind flag %q: %w", f.Name, err)
		}
	})
	return bindErr
}

// initConfig reads in the config file and ENV variables if set.
func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}
	v.AutomaticEnv()
	return nil
}

// lambdaRuntimeAPIEnv is set by the Lambda runtime for every function process.
const lambdaRuntimeAPIEnv = "AWS_LAMBDA_RUNTIME_API"

func inLambdaRuntime() bool {
	return os.Getenv(lambdaRuntimeAPIEnv) != ""
}

// startLambda hands the handler to the Lambda runtime loop. Replaced in tests.
var startLambda = func(handler any) {
	lambda.Start(handler)
}

func runLambda(cmd *cobra.Command, v *viper.Viper) error {
	if err := bindFlags(cmd, v); err != nil {
		return err
	}
	a, err := buildApp(cmd.Context(), v)
	if err != nil {
		return err
	}
	startLambda(a.handler.Handle)
	return nil
}

func runServe(cmd *cobra.Command, v *viper.Viper) error {
	if err := bindFlags(cmd, v); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, v)
	if err != nil {
		return err
	}

	srv, err := server.New(server.Config{
		Address:         a.cfg.ListenAddress(),
		UpstreamTimeout: a.cfg.UpstreamTimeout,
		ShutdownTimeout: a.cfg.ShutdownTimeout,
	}, a.handler)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
