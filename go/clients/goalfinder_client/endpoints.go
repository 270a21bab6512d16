package goalfinder_client

const (
	// Base URL of the device in access-point mode.
	DefaultBaseURL = "http://192.168.4.1/api"

	// API Endpoints
	HitsEndpoint         = "/hits"
	MissesEndpoint       = "/misses"
	SettingsEndpoint     = "/settings"
	StartEndpoint        = "/start"
	StopEndpoint         = "/stop"
	RestartEndpoint      = "/restart"
	FactoryResetEndpoint = "/factory-reset"
	UpdateEndpoint       = "/update"
	UpdateStatusEndpoint = "/update-status"
	IsAuthEndpoint       = "/isauth"

	// Multipart upload
	UpdateFileField = "file"
	UpdateFileName  = "firmware.bin"
)
