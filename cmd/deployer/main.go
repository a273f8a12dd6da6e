package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/fhelab/hpvs-deployer/cloud"
	"github.com/fhelab/hpvs-deployer/cmd/flags"
	"github.com/fhelab/hpvs-deployer/config"
	"github.com/fhelab/hpvs-deployer/docker"
	"github.com/fhelab/hpvs-deployer/interfaces"
	"github.com/fhelab/hpvs-deployer/keyring"
	"github.com/fhelab/hpvs-deployer/pipeline"
	"github.com/fhelab/hpvs-deployer/registration"
	"github.com/fhelab/hpvs-deployer/storage"
	"github.com/fhelab/hpvs-deployer/trust"
)

func main() {
	app := &cli.App{
		Name:      "hpvs-deployer",
		Usage:     "Sign, register and provision a toolkit container image onto the hosting service",
		ArgsUsage: "[alpine|fedora|ubuntu]",
		Flags: append([]cli.Flag{
			flags.ConfigFlag,
			flags.CreateConfigFlag,
			flags.LocalBuildFlag,
		}, flags.CommonFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		if errors.Is(err, interfaces.ErrConfiguration) {
			log.Printf("%v", err)
			log.Fatal("run with --help for usage")
		}
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configPath := cCtx.String(flags.ConfigFlag.Name)
	createPath := cCtx.String(flags.CreateConfigFlag.Name)
	switch {
	case configPath != "" && createPath != "":
		return fmt.Errorf("%w: --config and --create-config are mutually exclusive", interfaces.ErrConfiguration)
	case configPath == "" && createPath == "":
		return fmt.Errorf("%w: one of --config or --create-config is required", interfaces.ErrConfiguration)
	case createPath != "":
		if err := config.RunWizard(ctx, createPath); err != nil {
			return err
		}
		logger.Info("configuration file created", "path", createPath)
		configPath = createPath
	}

	cfg, err := config.Resolve(ctx, configPath, config.Options{
		Platform:   cCtx.Args().First(),
		LocalBuild: cCtx.Bool(flags.LocalBuildFlag.Name),
		Log:        logger,
	})
	if err != nil {
		return err
	}
	logger.Info("configuration resolved",
		"platform", cfg.Platform.String(),
		"source", cfg.Source.String(),
		"repository", cfg.Platform.Repository())

	runtime := docker.NewRuntime(logger)
	runner := pipeline.New(
		trust.NewSigner(runtime, logger),
		registration.NewBuilder(keyring.New(logger), logger),
		cloud.NewProvisioner(&cloud.Client{
			IAMEndpoint:      cfg.Cloud.IAMEndpoint,
			ResourceEndpoint: cfg.Cloud.ResourceEndpoint,
			Log:              logger,
		}, logger),
		runtime,
		storage.NewStorageBackendFactory(logger),
		logger,
	)

	instance, err := runner.Run(ctx, cfg)
	if err != nil {
		return err
	}

	logger.Info("deployment accepted",
		"instance_id", instance.InstanceID,
		"location", instance.Location,
		"tag", instance.SourceTag)
	fmt.Println(instance.InstanceID)
	return nil
}
