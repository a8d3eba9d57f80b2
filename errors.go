package federation

import (
	"errors"
)

// Runtime errors
var (
	// Registration errors
	ErrRemoteConflict    = errors.New("remote already registered")
	ErrRemoteNameEmpty   = errors.New("remote name must not be empty")
	ErrRemoteEntryEmpty  = errors.New("remote entry must not be empty")
	ErrAliasCollidesName = errors.New("remote alias collides with registered name")
	ErrPluginNameEmpty   = errors.New("plugin name must not be empty")

	// Resolution errors
	ErrRemoteNotFound   = errors.New("remote not found")
	ErrExposeNotFound   = errors.New("exposed module not found")
	ErrInvalidRemoteID  = errors.New("invalid remote id")
	ErrManifestFetch    = errors.New("manifest fetch failed")
	ErrManifestParse    = errors.New("manifest parse failed")
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// Loading errors
	ErrScriptExecution    = errors.New("remote entry execution failed")
	ErrEntryGlobalMissing = errors.New("no container factory registered for entry global")
	ErrContainerInit      = errors.New("container init failed")
	ErrModuleFactoryNil   = errors.New("container returned nil module factory")

	// Shared scope errors
	ErrSharedPackageNotFound = errors.New("no shared record registered for package")
	ErrSharedVersionInvalid  = errors.New("shared record version is not valid semver")
	ErrSharedGetterNil       = errors.New("shared record has no getter")

	// Prefetch errors
	ErrPrefetchFunction = errors.New("prefetch function failed")
	ErrPrefetchNotFound = errors.New("no prefetch function registered for key")
	ErrDeferKeyNotFound = errors.New("deferred key not found in prefetch result")

	// Config errors
	ErrConfigFileUnsupported = errors.New("unsupported host config file format")
	ErrConfigFileRead        = errors.New("failed to read host config file")
	ErrConfigParse           = errors.New("failed to parse host config file")

	// Watcher and refresher errors
	ErrWatcherAlreadyRunning   = errors.New("config watcher already running")
	ErrRefresherAlreadyRunning = errors.New("manifest refresher already running")
	ErrRefreshSchedule         = errors.New("invalid manifest refresh schedule")
)
