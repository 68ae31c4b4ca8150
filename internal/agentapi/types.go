package agentapi

// Config is the agent's full configuration document. The agent has no
// partial-update verb: every write round-trips get, mutate, set, and
// modno must be carried back unchanged or the agent rejects the write.
type Config struct {
	Modno    int64  `json:"modno"`
	Version  int32  `json:"version,omitempty"`
	Instance string `json:"instance,omitempty"`
	Repos    []Repo `json:"repos,omitempty"`
	Plans    []Plan `json:"plans,omitempty"`
	Auth     *Auth  `json:"auth,omitempty"`
}

// Repo is a storage target definition in the agent config.
type Repo struct {
	ID          string       `json:"id"`
	URI         string       `json:"uri"`
	Password    string       `json:"password,omitempty"`
	Env         []string     `json:"env"`
	Flags       []string     `json:"flags"`
	PrunePolicy *PrunePolicy `json:"prunePolicy,omitempty"`
	CheckPolicy *CheckPolicy `json:"checkPolicy,omitempty"`
}

// Plan is a backup plan definition in the agent config.
type Plan struct {
	ID          string     `json:"id"`
	Repo        string     `json:"repo"`
	Paths       []string   `json:"paths"`
	Excludes    []string   `json:"excludes"`
	IExcludes   []string   `json:"iexcludes"`
	Schedule    *Schedule  `json:"schedule,omitempty"`
	Retention   *Retention `json:"retention,omitempty"`
	BackupFlags []string   `json:"backup_flags,omitempty"`
}

// Schedule is either a cron schedule or explicitly disabled.
type Schedule struct {
	Clock    string `json:"clock,omitempty"`
	Cron     string `json:"cron,omitempty"`
	Disabled bool   `json:"disabled,omitempty"`
}

// ClockLocal is the schedule clock used for plan cron schedules.
const ClockLocal = "CLOCK_LOCAL"

// CronSchedule builds an enabled local-clock schedule.
func CronSchedule(cron string) *Schedule {
	return &Schedule{Clock: ClockLocal, Cron: cron}
}

// DisabledSchedule builds a disabled schedule.
func DisabledSchedule() *Schedule {
	return &Schedule{Disabled: true}
}

// Retention wraps the time-bucketed retention policy. The agent rejects
// plans whose policy omits buckets, so every field serializes even at
// zero.
type Retention struct {
	PolicyTimeBucketed TimeBucketedPolicy `json:"policyTimeBucketed"`
}

// TimeBucketedPolicy is the complete retention bucket set. No omitempty:
// zero buckets must appear on the wire.
type TimeBucketedPolicy struct {
	KeepLastN int `json:"keepLastN"`
	Hourly    int `json:"hourly"`
	Daily     int `json:"daily"`
	Weekly    int `json:"weekly"`
	Monthly   int `json:"monthly"`
	Yearly    int `json:"yearly"`
}

// PrunePolicy controls repository pruning.
type PrunePolicy struct {
	MaxUnusedPercent int       `json:"maxUnusedPercent"`
	Schedule         *Schedule `json:"schedule,omitempty"`
}

// CheckPolicy controls repository integrity checks.
type CheckPolicy struct {
	ReadDataSubsetPercent int       `json:"readDataSubsetPercent"`
	Schedule              *Schedule `json:"schedule,omitempty"`
}

// Auth is the agent's authentication section.
type Auth struct {
	Disabled bool   `json:"disabled,omitempty"`
	Users    []User `json:"users,omitempty"`
}

// User is an agent login. Setting NeedsBcrypt with a plaintext password
// asks the agent to hash it server-side; PasswordBcrypt carries an
// already-hashed credential.
type User struct {
	Name           string `json:"name"`
	Password       string `json:"password,omitempty"`
	PasswordBcrypt string `json:"passwordBcrypt,omitempty"`
	NeedsBcrypt    bool   `json:"needsBcrypt,omitempty"`
}

// FindPlan returns the plan with the given ID, or nil.
func (c *Config) FindPlan(planID string) *Plan {
	for i := range c.Plans {
		if c.Plans[i].ID == planID {
			return &c.Plans[i]
		}
	}
	return nil
}

// UpsertPlan replaces the plan with the same ID or appends it.
func (c *Config) UpsertPlan(p Plan) {
	for i := range c.Plans {
		if c.Plans[i].ID == p.ID {
			c.Plans[i] = p
			return
		}
	}
	c.Plans = append(c.Plans, p)
}

// DisablePlanSchedule marks a plan's schedule disabled. It touches
// nothing else in the document. Returns false if the plan is absent.
func (c *Config) DisablePlanSchedule(planID string) bool {
	p := c.FindPlan(planID)
	if p == nil {
		return false
	}
	p.Schedule = DisabledSchedule()
	return true
}

// SetUsers replaces the auth user list, creating the auth section if
// needed.
func (c *Config) SetUsers(users []User, disableAuth bool) {
	if c.Auth == nil {
		c.Auth = &Auth{}
	}
	c.Auth.Users = users
	c.Auth.Disabled = disableAuth
}

// Operation is one agent-reported unit of work. Unknown response fields
// are ignored; missing fields stay zero-valued.
type Operation struct {
	ID              string           `json:"id"`
	Type            string           `json:"type,omitempty"`
	Status          string           `json:"status,omitempty"`
	RepoID          string           `json:"repoId,omitempty"`
	PlanID          string           `json:"planId,omitempty"`
	SnapshotID      string           `json:"snapshotId,omitempty"`
	Stats           map[string]int64 `json:"stats,omitempty"`
	DisplayMessage  string           `json:"displayMessage,omitempty"`
	UnixTimeStartMs int64            `json:"unixTimeStartMs,omitempty"`
	UnixTimeEndMs   int64            `json:"unixTimeEndMs,omitempty"`
}

// OperationSelector filters GetOperations.
type OperationSelector struct {
	RepoID string `json:"repoId,omitempty"`
	PlanID string `json:"planId,omitempty"`
}

// Snapshot is one stored snapshot reported by the agent.
type Snapshot struct {
	ID       string   `json:"id"`
	Time     string   `json:"time,omitempty"`
	Hostname string   `json:"hostname,omitempty"`
	Paths    []string `json:"paths,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// NewRepo builds a repo definition with the default prune and check
// policies applied on creation.
func NewRepo(repoID, uri, password string) Repo {
	return Repo{
		ID:       repoID,
		URI:      uri,
		Password: password,
		Env:      []string{},
		Flags:    []string{},
		PrunePolicy: &PrunePolicy{
			MaxUnusedPercent: 10,
			Schedule:         &Schedule{Clock: "CLOCK_LAST_RUN_TIME", Cron: "0 0 1 * *"},
		},
		CheckPolicy: &CheckPolicy{
			ReadDataSubsetPercent: 0,
			Schedule:              &Schedule{Clock: "CLOCK_LAST_RUN_TIME", Cron: "0 0 1 * *"},
		},
	}
}
