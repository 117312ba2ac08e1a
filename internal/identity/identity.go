package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxHostnameLen bounds the host name so topics stay within their buffer.
const maxHostnameLen = 32

// compilerDateLayout is the layout of a build stamp in compiler date form,
// e.g. "May 13 2019 07:35:27".
const compilerDateLayout = "Jan _2 2006 15:04:05"

// ErrInvalidHostname is returned when a host name cannot be used in a topic.
var ErrInvalidHostname = errors.New("identity: invalid hostname")

// Identity describes who this node is on the network.
//
// Everything except the host name is fixed for the process lifetime.
// The host name defaults to the device id and may be replaced by the
// hostname setting; the change only takes effect on the next session
// because the host name is baked into the connect sequence.
type Identity struct {
	app      string
	version  string
	deviceID string
	bootID   string
	hostname string
}

// New builds an Identity.
//
// Parameters:
//   - appPath: path-like string naming the application binary; directory and extension are stripped
//   - version: build version (a compiler date stamp is normalised)
//   - deviceID: stable hardware-derived identifier, also the default host name
//
// Returns:
//   - *Identity: ready to use
//   - error: if the application name or device id is empty
func New(appPath, version, deviceID string) (*Identity, error) {
	app := AppName(appPath)
	if app == "" {
		return nil, fmt.Errorf("identity: cannot derive application name from %q", appPath)
	}
	if deviceID == "" {
		return nil, errors.New("identity: device id is required")
	}
	return &Identity{
		app:      app,
		version:  NormaliseVersion(version),
		deviceID: deviceID,
		bootID:   uuid.NewString(),
		hostname: deviceID,
	}, nil
}

// AppName strips any leading directories (either separator) and the final
// extension from a path-like string.
//
// Example: "/opt/bin/doorctl.bin" -> "doorctl", `C:\fw\gate.ino` -> "gate".
func AppName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		path = path[i+1:]
	}
	if i := strings.LastIndexByte(path, '.'); i > 0 {
		path = path[:i]
	}
	return path
}

// NormaliseVersion rewrites a compiler date stamp into sortable form.
// Any other version string is returned unchanged.
func NormaliseVersion(v string) string {
	if len(v) != len(compilerDateLayout) || v[0] >= '0' && v[0] <= '9' {
		return v
	}
	t, err := time.Parse(compilerDateLayout, v)
	if err != nil {
		return v
	}
	return t.Format("2006-01-02 15:04:05")
}

// App returns the application name.
func (id *Identity) App() string { return id.app }

// Version returns the normalised build version.
func (id *Identity) Version() string { return id.version }

// DeviceID returns the hardware-derived device identifier.
func (id *Identity) DeviceID() string { return id.deviceID }

// BootID returns a random identifier unique to this process start.
func (id *Identity) BootID() string { return id.bootID }

// Hostname returns the current host name.
func (id *Identity) Hostname() string { return id.hostname }

// SetHostname replaces the host name. An empty name reverts to the device id.
// Names containing topic separators or wildcards are rejected.
func (id *Identity) SetHostname(name string) error {
	if name == "" {
		id.hostname = id.deviceID
		return nil
	}
	if err := ValidateHostname(name); err != nil {
		return err
	}
	id.hostname = name
	return nil
}

// ValidateHostname checks that name can be used as a topic level.
func ValidateHostname(name string) error {
	if len(name) > maxHostnameLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidHostname, maxHostnameLen)
	}
	if strings.ContainsAny(name, "/+#* ") {
		return fmt.Errorf("%w: %q contains a reserved character", ErrInvalidHostname, name)
	}
	return nil
}

// NetworkName is the name the node announces on the local network.
func (id *Identity) NetworkName() string {
	return id.app + "-" + id.hostname
}

// FactoryToken is the payload a factory reset command must carry exactly:
// the device id followed by the application name.
func (id *Identity) FactoryToken() []byte {
	return []byte(id.deviceID + id.app)
}
