package reconcile

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/charmrev/internal/charmstore"
	"github.com/temirov/charmrev/internal/resolver"
	"github.com/temirov/charmrev/internal/scanner"
)

const (
	reconcileCommandUseConstant              = "reconcile"
	reconcileCommandShortDescriptionConstant = "Reconcile charmstore revisions with GitHub stable branches"
	reconcileCommandLongDescriptionConstant  = "reconcile scans tracked charms for new charmstore revisions, matches their build commits against stable release branches on GitHub, and records the result in the revision ledger."
	storeFlagNameConstant                    = "store"
	storeFlagDescriptionConstant             = "Path to the revision ledger YAML file"
	charmFlagNameConstant                    = "charm"
	charmFlagDescriptionConstant             = "Charm to track in addition to those already in the ledger (repeatable)"
	unexpectedArgumentsErrorMessageConstant  = "reconcile does not accept positional arguments"
	commandExecutionErrorTemplateConstant    = "reconcile failed: %w"
	loggerUnavailableMessageConstant         = "logger not available"
	httpTimeoutConstant                      = 30 * time.Second
)

// ErrLoggerUnavailable indicates the command ran without a logger provider.
var ErrLoggerUnavailable = errors.New(loggerUnavailableMessageConstant)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current reconcile configuration.
type ConfigurationProvider func() Configuration

// CommandBuilder assembles the reconcile command with its collaborators.
// Zero-valued collaborator fields fall back to production implementations.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	HTTPClient            charmstore.HTTPClient
	RepositoryLister      resolver.RepositoryLister
	EnvironmentLookup     resolver.EnvironmentLookup
}

// Build constructs the reconcile command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	reconcileCommand := &cobra.Command{
		Use:   reconcileCommandUseConstant,
		Short: reconcileCommandShortDescriptionConstant,
		Long:  reconcileCommandLongDescriptionConstant,
		RunE:  builder.runReconcile,
	}

	reconcileCommand.Flags().String(storeFlagNameConstant, "", storeFlagDescriptionConstant)
	reconcileCommand.Flags().StringArray(charmFlagNameConstant, nil, charmFlagDescriptionConstant)

	return reconcileCommand, nil
}

func (builder *CommandBuilder) runReconcile(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errors.New(unexpectedArgumentsErrorMessageConstant)
	}

	logger := builder.resolveLogger()
	if logger == nil {
		return ErrLoggerUnavailable
	}

	configuration := builder.resolveConfiguration().Sanitize()

	storeFlagValue, storeFlagError := command.Flags().GetString(storeFlagNameConstant)
	if storeFlagError != nil {
		return storeFlagError
	}
	if len(storeFlagValue) > 0 {
		configuration.StorePath = storeFlagValue
	}

	charmFlagValues, charmFlagError := command.Flags().GetStringArray(charmFlagNameConstant)
	if charmFlagError != nil {
		return charmFlagError
	}
	configuration.Charms = append(configuration.Charms, sanitizeCharmNames(charmFlagValues)...)

	reconcileService, serviceError := builder.buildService(command, logger)
	if serviceError != nil {
		return serviceError
	}

	runOptions := Options{StorePath: configuration.StorePath, EnsureCharms: configuration.Charms}
	if runError := reconcileService.Run(command.Context(), runOptions); runError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, runError)
	}

	return nil
}

func (builder *CommandBuilder) buildService(command *cobra.Command, logger *zap.Logger) (*Service, error) {
	httpClient := builder.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeoutConstant}
	}

	registryClient, registryError := charmstore.NewClient(logger, httpClient, charmstore.ClientConfiguration{})
	if registryError != nil {
		return nil, registryError
	}

	scannerService, scannerError := scanner.NewService(scanner.Dependencies{Registry: registryClient, Logger: logger})
	if scannerError != nil {
		return nil, scannerError
	}

	repositoryLister := builder.RepositoryLister
	if repositoryLister == nil {
		githubCredentials := resolver.CredentialsFromEnvironment(builder.EnvironmentLookup)
		repositoryLister = resolver.NewRepositoryLister(command.Context(), githubCredentials)
	}

	resolverService, resolverError := resolver.NewService(resolver.Dependencies{RepositoryLister: repositoryLister, Logger: logger})
	if resolverError != nil {
		return nil, resolverError
	}

	return NewService(Dependencies{
		Scanner:  scannerService,
		Resolver: resolverService,
		Logger:   logger,
	})
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return nil
	}
	return builder.LoggerProvider()
}

func (builder *CommandBuilder) resolveConfiguration() Configuration {
	if builder.ConfigurationProvider == nil {
		return DefaultConfiguration()
	}
	return builder.ConfigurationProvider()
}
