package job

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ResponseCode is the status carried by every scheduler response.
type ResponseCode string

// Response codes returned by the scheduler.
const (
	ResponseOK             ResponseCode = "OK"
	ResponseInvalidRequest ResponseCode = "INVALID_REQUEST"
	ResponseWarning        ResponseCode = "WARNING"
	ResponseError          ResponseCode = "ERROR"
	ResponseAuthFailed     ResponseCode = "AUTH_FAILED"
)

// UpdateResult tells the scheduler how an update cycle ended.
type UpdateResult string

// Update results accepted by FinishUpdate.
const (
	UpdateSuccess   UpdateResult = "SUCCESS"
	UpdateFailed    UpdateResult = "FAILED"
	UpdateTerminate UpdateResult = "TERMINATE"
)

// TaskStatus is the scheduling state of a single task.
type TaskStatus string

// Task states known to the scheduler.
const (
	TaskPending  TaskStatus = "PENDING"
	TaskStarting TaskStatus = "STARTING"
	TaskRunning  TaskStatus = "RUNNING"
	TaskFinished TaskStatus = "FINISHED"
	TaskFailed   TaskStatus = "FAILED"
	TaskKilled   TaskStatus = "KILLED"
	TaskLost     TaskStatus = "LOST"
)

// ParseTaskStatus converts user input into a known TaskStatus.
func ParseTaskStatus(s string) (TaskStatus, error) {
	status := TaskStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case TaskPending, TaskStarting, TaskRunning, TaskFinished, TaskFailed, TaskKilled, TaskLost:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTaskStatus, s)
	}
}

// IsTerminal reports whether no further transitions are expected for the task.
func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskFinished, TaskFailed, TaskKilled, TaskLost:
		return true
	default:
		return false
	}
}

var (
	// ErrUnknownTaskStatus is returned for task states the scheduler does not know.
	ErrUnknownTaskStatus = errors.New("unknown task status")
	// ErrNoConfig is returned when no job configuration is given.
	ErrNoConfig = errors.New("job configuration must be provided")
	// ErrRoleRequired is returned when a job configuration has no role.
	ErrRoleRequired = errors.New("job role must be provided")
	// ErrNameRequired is returned when a job configuration has no name.
	ErrNameRequired = errors.New("job name must be provided")
	// ErrNoShards is returned when a job configuration asks for zero shards.
	ErrNoShards = errors.New("job must have at least one shard")
)

// Identity names the owner of a job.
type Identity struct {
	// Role is the namespace the job is organized under.
	Role string `yaml:"role" json:"role"`
	// User is the principal acting for the role, if any.
	User string `yaml:"user,omitempty" json:"user,omitempty"`
}

// Resources describes the per-shard resource reservation.
type Resources struct {
	CPU    float64 `yaml:"cpu" json:"cpu"`
	RAMMB  int64   `yaml:"ram_mb" json:"ramMb"`
	DiskMB int64   `yaml:"disk_mb" json:"diskMb"`
}

// Config is the client-side description of a job.
type Config struct {
	// Role is the owner role of the job.
	Role string `yaml:"role" json:"role"`
	// Name is the job name, unique within the role.
	Name string `yaml:"name" json:"name"`
	// Shards is the number of replicated instances.
	Shards int `yaml:"shards" json:"shards"`
	// Command is the command line each shard runs.
	Command string `yaml:"command" json:"command"`
	// Resources is the reservation for each shard.
	Resources Resources `yaml:"resources" json:"resources"`
	// CronSchedule, when set, makes the job a cron job.
	CronSchedule string `yaml:"cron_schedule,omitempty" json:"cronSchedule,omitempty"`
	// FilesystemPath is the destination of the application artifact,
	// relative to the cluster's shared filesystem root.
	FilesystemPath string `yaml:"filesystem_path,omitempty" json:"filesystemPath,omitempty"`
}

// Validate checks the mandatory fields of the job configuration.
func (c *Config) Validate() error {
	switch {
	case c == nil:
		return ErrNoConfig
	case c.Role == "":
		return ErrRoleRequired
	case c.Name == "":
		return ErrNameRequired
	case c.Shards <= 0:
		return ErrNoShards
	}

	return nil
}

// Key returns the role/name pair identifying the job.
func (c *Config) Key() string {
	return Key(c.Role, c.Name)
}

// ShardIDs returns the indices of every shard of the job.
func (c *Config) ShardIDs() []int {
	ids := make([]int, c.Shards)
	for i := range ids {
		ids[i] = i
	}

	return ids
}

// Key joins a role and a job name.
func Key(role, name string) string {
	return role + "/" + name
}

// LoadConfig reads a YAML job configuration from path and validates it.
func LoadConfig(path string) (*Config, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read job config: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal job config: %w", err)
	}

	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// TaskQuery selects tasks of a job.
type TaskQuery struct {
	Owner   Identity `json:"owner"`
	JobName string   `json:"jobName"`
	// ShardIDs restricts the query to the listed shards when non-empty.
	ShardIDs []int `json:"shardIds,omitempty"`
}

// Quota is the resource allowance of a role.
type Quota struct {
	CPU    float64 `yaml:"cpu" json:"cpu"`
	RAMMB  int64   `yaml:"ram_mb" json:"ramMb"`
	DiskMB int64   `yaml:"disk_mb" json:"diskMb"`
}

// Task is a scheduled shard of a job.
type Task struct {
	TaskID  string     `yaml:"task_id" json:"taskId"`
	Role    string     `yaml:"role" json:"role"`
	JobName string     `yaml:"job_name" json:"jobName"`
	ShardID int        `yaml:"shard_id" json:"shardId"`
	Status  TaskStatus `yaml:"status" json:"status"`
}

// Response is the common envelope of every scheduler reply.
type Response struct {
	Code    ResponseCode `json:"responseCode"`
	Message string       `json:"message"`
}

// OK reports whether the scheduler accepted the request.
func (r *Response) OK() bool {
	return r != nil && r.Code == ResponseOK
}

// Outcome is the terminal result of an update or cancel request.
type Outcome struct {
	Code    ResponseCode
	Message string
}

// Fixed messages reported by successful update cycles.
const (
	MessageUpdateSuccessful   = "Update Successful"
	MessageUpdateUnsuccessful = "Update Unsuccessful"
	MessageUpdateCancelled    = "Update Cancelled"
)

// Rejected builds an INVALID_REQUEST outcome carrying the remote message.
func Rejected(message string) Outcome {
	return Outcome{Code: ResponseInvalidRequest, Message: message}
}

// String renders the outcome as "CODE: message".
func (o Outcome) String() string {
	return fmt.Sprintf("%s: %s", o.Code, o.Message)
}

// ShardSet is a set of shard indices.
type ShardSet map[int]struct{}

// NewShardSet builds a set from the given shard indices.
func NewShardSet(ids ...int) ShardSet {
	s := make(ShardSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}

	return s
}

// Add inserts a shard index.
func (s ShardSet) Add(id int) {
	s[id] = struct{}{}
}

// Contains reports whether the shard index is present.
func (s ShardSet) Contains(id int) bool {
	_, ok := s[id]
	return ok
}

// Empty reports whether no shard failed.
func (s ShardSet) Empty() bool {
	return len(s) == 0
}

// Sorted returns the shard indices in ascending order.
func (s ShardSet) Sorted() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	return ids
}
