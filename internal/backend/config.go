package backend

// Transport names a backend's wire transport. Only Stdio is implemented by
// this core; Transport is still parsed and stored so an HTTP-transport
// backend config is tolerated rather than rejected outright, satisfying the
// "transport: stdio|http" field in spec §3 without building the HTTP path.
type Transport string

const (
	TransportStdio Transport = "stdio"
	TransportHTTP  Transport = "http"
)

// Restart is the crash-recovery policy for a backend. Only RestartNone is
// implemented in this core (spec §4.1, §9); RestartOnExit is accepted so a
// config file written for a future host version still loads, and is logged
// once as unimplemented rather than rejected.
type Restart string

const (
	RestartNone   Restart = "none"
	RestartOnExit Restart = "on_exit"
)

// Parameter describes one named argument of a tool, matching the wire shape
// in spec §6: {"name":..., "type":"string|number|boolean|array|object", "required":bool, "description":"..."}.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required,omitempty"`
	Description string `json:"description,omitempty"`
}

// ToolSchema is a tool's advertised shape, as carried in both the backend
// config file and a backend's initialize response once normalized.
type ToolSchema struct {
	Description string      `json:"description,omitempty"`
	Parameters  []Parameter `json:"parameters,omitempty"`
}

// Config is the immutable per-backend record loaded from the backend
// configuration file (spec §3, §6).
type Config struct {
	BackendID   string
	Command     string
	Args        []string
	Env         map[string]string
	Tools       map[string]ToolSchema
	AutoApprove []string
	Disabled    bool
	Transport   Transport
	Restart     Restart
}
