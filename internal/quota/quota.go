package quota

// Name identifies a quota dimension enforced by the sync store and binder.
type Name string

const (
	// MaxRequestBodySize caps the size of an HTTP request body in bytes.
	MaxRequestBodySize Name = "max_request_body_size"
	// MaxEnvContentLength caps environment file content in bytes.
	MaxEnvContentLength Name = "max_env_content_length"
	// MaxEnvVarCount caps the number of parsed variables per environment file.
	MaxEnvVarCount Name = "max_env_var_count"
	// MaxEnvFileNameLength caps environment file names in bytes.
	MaxEnvFileNameLength Name = "max_env_file_name_length"
	// MaxEnvsPerRepo caps environment files per repository.
	MaxEnvsPerRepo Name = "max_envs_per_repo"
	// MaxReposPerUser caps repositories per user.
	MaxReposPerUser Name = "max_repos_per_user"
	// MaxWorkspacePathLength caps a synced workspace path in bytes.
	MaxWorkspacePathLength Name = "max_workspace_path_length"
	// MaxDevicesPerUser caps registered devices per user.
	MaxDevicesPerUser Name = "max_devices_per_user"
	// MaxPublicKeyLength caps a device public key in bytes.
	MaxPublicKeyLength Name = "max_public_key_length"
)

// ceilings holds the fixed quota policy table. Values are process-wide
// configuration; existing records above a lowered ceiling are grandfathered,
// never auto-deleted.
var ceilings = map[Name]int{
	MaxRequestBodySize:     1_048_576,
	MaxEnvContentLength:    512_000,
	MaxEnvVarCount:         10_000,
	MaxEnvFileNameLength:   255,
	MaxEnvsPerRepo:         50,
	MaxReposPerUser:        50,
	MaxWorkspacePathLength: 1_024,
	MaxDevicesPerUser:      20,
	MaxPublicKeyLength:     4_096,
}

// Limit returns the ceiling for a quota dimension. Unknown names return 0,
// which callers must treat as "no records allowed".
func Limit(name Name) int {
	return ceilings[name]
}
